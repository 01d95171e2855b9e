package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

// accessChecker answers the role and assignment questions every service asks.
type accessChecker struct {
	repo repositories.Repository
}

// role resolves the user's role; unknown users get no role.
func (a accessChecker) role(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := a.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	return user.Role, nil
}

func (a accessChecker) isAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := a.role(ctx, userID)
	return role == models.RoleAdmin, err
}

// canAuthor is the lecturer-or-admin check used for exam authoring.
func (a accessChecker) canAuthor(ctx context.Context, userID string) (bool, error) {
	role, err := a.role(ctx, userID)
	return role == models.RoleAdmin || role == models.RoleTeacher, err
}

// canSupervise is true for admins and users assigned to the exam.
func (a accessChecker) canSupervise(ctx context.Context, examID uint, userID string) (bool, error) {
	admin, err := a.isAdmin(ctx, userID)
	if err != nil || admin {
		return admin, err
	}
	ok, err := a.repo.Roster().IsExamSupervisor(ctx, nil, examID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check supervisor: %w", err)
	}
	return ok, nil
}

// canManage adds the exam's creator to canSupervise.
func (a accessChecker) canManage(ctx context.Context, exam *models.Exam, userID string) (bool, error) {
	if exam.CreatedBy == userID {
		return true, nil
	}
	return a.canSupervise(ctx, exam.ID, userID)
}
