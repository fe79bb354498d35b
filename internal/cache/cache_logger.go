package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAttemptCache drops every cached view of an attempt after a
// state transition or an answer write.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, userID string, templateID uint) {
	SafeDelete(ctx, cm.Fast,
		fmt.Sprintf("attempt:id:%d", attemptID),
		fmt.Sprintf("attempt:active:%s:%d", userID, templateID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("template:%d:*", templateID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("user:%s:*", userID))
}

// InvalidateTemplateCache drops cached template views after a status
// transition.
func InvalidateTemplateCache(ctx context.Context, cm *CacheManager, templateID uint) {
	SafeDelete(ctx, cm.Template,
		fmt.Sprintf("id:%d", templateID),
		fmt.Sprintf("questions:%d", templateID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("template:%d:*", templateID))
}
