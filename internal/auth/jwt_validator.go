package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// TokenValidator checks the claims of a signature-verified access token and
// turns them into the caller's identity.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Identity validates tok at now and returns who it was issued to. sub, exp
// and role are required. Expired tokens yield an error matching
// jwt.ErrTokenExpired().
func (v TokenValidator) Identity(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (common.Identity, error) {
	if tok == nil {
		return common.Identity{}, errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return common.Identity{}, errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return common.Identity{}, fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(claimRole),
		jwt.WithAcceptableSkew(v.ClockSkew),
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return common.Identity{}, err
	}

	id := common.Identity{
		UserID:   tok.Subject(),
		Username: stringClaim(tok, claimUsername),
		Role:     stringClaim(tok, claimRole),
	}
	if id.Role != RoleAdmin {
		return common.Identity{}, fmt.Errorf("auth: unknown role %q", id.Role)
	}
	return id, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
