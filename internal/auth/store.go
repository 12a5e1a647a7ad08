package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("auth: account not found")
	ErrUsernameTaken   = errors.New("auth: username already taken")
)

// Account is the persisted user record including the password hash.
type Account struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	Role         string    `json:"role" bson:"role"`
	PasswordHash string    `json:"passwordHash" bson:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Public strips credentials.
func (a Account) Public() User {
	return User{ID: a.ID, Username: a.Username, Name: a.Name, Email: a.Email, Role: a.Role, CreatedAt: a.CreatedAt}
}

// AccountStore persists accounts. Usernames are unique; a collision is
// ErrUsernameTaken and a missing record is ErrAccountNotFound.
type AccountStore interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	AccountByUsername(ctx context.Context, username string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	CountAccountsByRole(ctx context.Context, role string) (int64, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
}
