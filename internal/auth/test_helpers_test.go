package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	mu     sync.Mutex
	byID   map[string]Account
	byName map[string]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]Account{}, byName: map[string]string{}}
}

func (f *fakeAccounts) CreateAccount(_ context.Context, a Account) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(a.Username)
	if _, ok := f.byName[key]; ok {
		return Account{}, ErrUsernameTaken
	}
	f.byID[a.ID] = a
	f.byName[key] = a.ID
	return a, nil
}

func (f *fakeAccounts) AccountByUsername(_ context.Context, username string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byName[strings.ToLower(username)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return f.byID[id], nil
}

func (f *fakeAccounts) AccountByID(_ context.Context, id string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) CountAccountsByRole(_ context.Context, role string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.byID {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *fakeAccounts) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = at
	f.byID[id] = a
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeAccounts) {
	t.Helper()
	accounts := newFakeAccounts()
	svc, err := NewService(Config{Accounts: accounts, Secret: "test-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	return svc, accounts
}

func registerAdmin(t *testing.T, svc *Service) User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{Username: "admin", Password: "secret123"})
	require.NoError(t, err)
	return user
}
