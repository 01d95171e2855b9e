package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// UserRepository resolves identities and roles; the user store is external.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
