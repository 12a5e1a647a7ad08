package common

import "context"

type ctxKey string

const (
	identityKey     ctxKey = "auth/identity"
	identitySlotKey ctxKey = "auth/identity-slot"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// WithIdentity stores the authenticated identity on the provided context and
// fills the slot installed by WithIdentitySlot, if any.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if slot, ok := ctx.Value(identitySlotKey).(*Identity); ok && slot != nil {
		*slot = id
	}
	return context.WithValue(ctx, identityKey, id)
}

// WithIdentitySlot lets outer middleware observe an identity attached further
// down the chain, e.g. for access logs.
func WithIdentitySlot(ctx context.Context) (context.Context, *Identity) {
	slot := &Identity{}
	return context.WithValue(ctx, identitySlotKey, slot), slot
}

// IdentityFrom extracts the authenticated identity from the context if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.UserID, ok
}
