package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/obs"
)

const (
	defaultAccessTTL = 24 * time.Hour
	// RoleAdmin is the only role the register endpoint ever grants.
	RoleAdmin = "admin"

	claimUsername = "username"
	claimRole     = "role"

	minPasswordLength = 6
	defaultEmailHost  = "vqs.com"
)

var (
	ErrNoToken      = errors.New("auth: token missing")
	ErrInvalidToken = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
)

// Service handles admin bootstrap, credential checks and token issuance.
type Service struct {
	accounts  AccountStore
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Accounts       AccountStore
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// User represents a safe subset of the account returned to clients.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResult bundles the token returned after a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// RegisterInput carries the first-admin registration payload.
type RegisterInput struct {
	Username string
	Password string
	Name     string
	Email    string
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Accounts == nil {
		return nil, errors.New("auth: account store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-invoice"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "invoice-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		accounts:  cfg.Accounts,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AdminExists reports whether the single admin account has been created.
func (s *Service) AdminExists(ctx context.Context) (bool, error) {
	n, err := s.accounts.CountAccountsByRole(ctx, RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

// Register creates the admin account. It is refused once an admin exists.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result User, err error) {
	defer func() { obs.CountAuthAttempt("register", resultLabel(err)) }()

	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "username and password are required", httpStatusBadRequest, nil)
	}
	if len(in.Password) < minPasswordLength {
		return User{}, common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("password must be at least %d characters", minPasswordLength), httpStatusBadRequest, nil)
	}
	exists, err := s.AdminExists(ctx)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, common.NewAppError("ADMIN_EXISTS", "admin already exists, registration is closed", httpStatusForbidden, nil)
	}

	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		email = strings.ToLower(username) + "@" + defaultEmailHost
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = username
	}
	now := s.now().UTC()
	created, err := s.accounts.CreateAccount(ctx, Account{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         name,
		Email:        email,
		Role:         RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, common.NewAppError("USERNAME_TAKEN", "username is already registered", httpStatusConflict, err)
		}
		return User{}, fmt.Errorf("create account: %w", err)
	}
	return created.Public(), nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (result LoginResult, err error) {
	defer func() { obs.CountAuthAttempt("login", resultLabel(err)) }()

	invalid := common.NewAppError("INVALID_CREDENTIALS", "invalid username or password", httpStatusUnauthorized, nil)
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, invalid
	}
	account, err := s.accounts.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, invalid
		}
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, account.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalid
	}

	token, expiresAt, err := s.signAccessToken(account)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: account.Public()}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, common.NewAppError("AUTH_FAILED", "unauthorized", httpStatusUnauthorized, nil)
	}
	account, err := s.accounts.AccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return User{}, common.NewAppError("NOT_FOUND", "user not found", httpStatusNotFound, err)
		}
		return User{}, fmt.Errorf("load account: %w", err)
	}
	return account.Public(), nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return common.NewAppError("VALIDATION_ERROR", "current and new password are required", httpStatusBadRequest, nil)
	}
	if len(next) < minPasswordLength {
		return common.NewAppError("VALIDATION_ERROR", fmt.Sprintf("password must be at least %d characters", minPasswordLength), httpStatusBadRequest, nil)
	}
	account, err := s.accounts.AccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return common.NewAppError("NOT_FOUND", "user not found", httpStatusNotFound, err)
		}
		return fmt.Errorf("load account: %w", err)
	}
	ok, err := argon2id.ComparePasswordAndHash(current, account.PasswordHash)
	if err != nil || !ok {
		return common.NewAppError("INVALID_CREDENTIALS", "current password is incorrect", httpStatusBadRequest, nil)
	}
	hash, err := argon2id.CreateHash(next, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Authenticate validates an access token and returns the identity it carries.
// Failures are AppErrors wrapping ErrNoToken, ErrInvalidToken or ErrTokenExpired.
func (s *Service) Authenticate(token string) (common.Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Identity{}, common.NewAppError("NO_TOKEN", "no token, authorization denied", httpStatusUnauthorized, ErrNoToken)
	}
	invalid := func(cause error) error {
		return common.NewAppError("INVALID_TOKEN", "token is not valid", httpStatusUnauthorized, fmt.Errorf("%w: %w", ErrInvalidToken, cause))
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Identity{}, invalid(err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return common.Identity{}, invalid(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return common.Identity{}, invalid(err)
	}
	id, err := s.validator.Identity(parsed, algorithm, s.now())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return common.Identity{}, common.NewAppError("TOKEN_EXPIRED", "token has expired", httpStatusUnauthorized, fmt.Errorf("%w: %w", ErrTokenExpired, err))
		}
		return common.Identity{}, invalid(err)
	}
	return id, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(account Account) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(account.ID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(claimUsername, account.Username).
		Claim(claimRole, account.Role).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

const (
	httpStatusBadRequest   = 400
	httpStatusUnauthorized = 401
	httpStatusForbidden    = 403
	httpStatusNotFound     = 404
	httpStatusConflict     = 409
)
