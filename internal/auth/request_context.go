package auth

import (
	"context"

	"spacewh/mis/internal/models/entities"
)

type contextKey string

var (
	identityKey  contextKey = "member_identity"
	adminUserKey contextKey = "admin_user"
	requestIDKey contextKey = "request_id"
)

// SetIdentity stores the membership identity resolved from a bearer key
func SetIdentity(ctx context.Context, identity *entities.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the bearer identity, or nil for anonymous requests
func GetIdentity(ctx context.Context) *entities.Identity {
	if identity, ok := ctx.Value(identityKey).(*entities.Identity); ok {
		return identity
	}
	return nil
}

func SetAdminUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, adminUserKey, username)
}

func GetAdminUser(ctx context.Context) string {
	if username, ok := ctx.Value(adminUserKey).(string); ok {
		return username
	}
	return ""
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
