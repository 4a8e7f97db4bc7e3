package auth

import (
	"context"
	"errors"
)

var (
	ErrNoUser   = errors.New("auth: user_id not in context")
	ErrNoTenant = errors.New("auth: tenant_id not in context")
	ErrNoRole   = errors.New("auth: role not in context")
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxTenantID
	ctxRole
	ctxClientIP
)

func WithIdentity(ctx context.Context, userID, tenantID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxTenantID, tenantID)
	return context.WithValue(ctx, ctxRole, role)
}

func UserID(ctx context.Context) (string, error) {
	return value(ctx, ctxUserID, ErrNoUser)
}

func TenantID(ctx context.Context) (string, error) {
	return value(ctx, ctxTenantID, ErrNoTenant)
}

func Role(ctx context.Context) (string, error) {
	return value(ctx, ctxRole, ErrNoRole)
}

// WithClientIP records the caller address for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxClientIP, ip)
}

func ClientIP(ctx context.Context) string {
	s, _ := ctx.Value(ctxClientIP).(string)
	return s
}

func value(ctx context.Context, k ctxKey, missing error) (string, error) {
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, nil
	}
	return "", missing
}
