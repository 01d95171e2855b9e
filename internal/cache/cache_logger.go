package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeDelete deletes keys and logs instead of returning failures.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys", "error", err, "keys", keys)
	}
}

// SafeInvalidatePattern invalidates a pattern and logs instead of returning failures.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern", "error", err, "pattern", pattern)
	}
}

func ExamKey(examID uint) string {
	return fmt.Sprintf("id:%d", examID)
}

func SupervisorKey(examID uint, userID string) string {
	return fmt.Sprintf("supervisor:%d:%s", examID, userID)
}

func SupervisedExamsKey(userID string) string {
	return fmt.Sprintf("supervised:%s", userID)
}

func RoomMemberKey(roomID uint, userID string) string {
	return fmt.Sprintf("room:%d:%s", roomID, userID)
}

func InvalidateExam(ctx context.Context, cm *CacheManager, examID uint) {
	SafeDelete(ctx, cm.Exam, ExamKey(examID))
}

// InvalidateSupervisors drops supervisor predicates for one exam and the
// per-user supervised lists, which may now include it.
func InvalidateSupervisors(ctx context.Context, cm *CacheManager, examID uint, userIDs []string) {
	SafeInvalidatePattern(ctx, cm.Access, fmt.Sprintf("supervisor:%d:*", examID))
	for _, id := range userIDs {
		SafeDelete(ctx, cm.Access, SupervisedExamsKey(id))
	}
}
