package store

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const userIdKey ctxKey = iota

// WithUserId stamps the acting user onto the context so components deep in
// the call chain can scope their work without widening every signature.
func WithUserId(ctx context.Context, userId uuid.UUID) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

// UserIdFrom extracts the acting user stamped by WithUserId.
func UserIdFrom(ctx context.Context) (uuid.UUID, bool) {
	userId, ok := ctx.Value(userIdKey).(uuid.UUID)
	return userId, ok
}
