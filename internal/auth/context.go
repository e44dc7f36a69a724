package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const rtoIDKey contextKey = "rtoID"

// ContextWithRTOID returns a new context that carries the authenticated tenant scope.
func ContextWithRTOID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, rtoIDKey, id)
}

// RTOIDFromContext retrieves the authenticated tenant scope from the context, if any.
func RTOIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	value := ctx.Value(rtoIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}
	if id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EnforceRTOScope ensures the provided tenant matches the authenticated scope when present.
func EnforceRTOScope(ctx context.Context, rtoID uuid.UUID) error {
	if rtoID == uuid.Nil {
		return fmt.Errorf("rtoId is required")
	}
	scopedID, ok := RTOIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != rtoID {
		return fmt.Errorf("rtoId %s does not match authenticated scope", rtoID)
	}
	return nil
}
