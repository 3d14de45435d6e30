package middleware

import (
	"context"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

type contextKey string

const (
	ctxAdminID contextKey = "admin_id"
	ctxRole    contextKey = "admin_role"
)

func AdminIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.AdminRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.AdminRole); ok {
		return v
	}
	return ""
}

// WithAdmin injects the authenticated operator into the context.
func WithAdmin(ctx context.Context, adminID string, role enums.AdminRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxAdminID, adminID)
	return context.WithValue(ctx, ctxRole, role)
}
