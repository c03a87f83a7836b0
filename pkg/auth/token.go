package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret    = errors.New("auth: signing secret not configured")
	ErrBadSubject  = errors.New("auth: subject is not a staff id")
	ErrMissingSID  = errors.New("auth: token carries no session id")
	ErrUnknownRole = errors.New("auth: unknown role")
)

// Claims is the payload the host signs for a staff session.
type Claims struct {
	jwt.RegisteredClaims

	SessionID   string  `json:"sid"`
	Role        string  `json:"role"`
	Departments []int64 `json:"depts,omitempty"`
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier. issuer may be empty to skip the iss check.
func NewVerifier(secret, issuer string, leeway time.Duration) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify parses token and returns the actor it names.
func (v *Verifier) Verify(token string) (*Actor, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	staffID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || staffID <= 0 {
		return nil, ErrBadSubject
	}
	if claims.SessionID == "" {
		return nil, ErrMissingSID
	}
	switch claims.Role {
	case RoleAdmin, RoleStaff, RoleUser:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}

	return &Actor{
		StaffID:     staffID,
		SessionID:   claims.SessionID,
		Role:        claims.Role,
		Departments: claims.Departments,
	}, nil
}

// Sign mints a token for actor. Used by the host bridge and tests.
func Sign(secret, issuer string, actor Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.StaffID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SessionID:   actor.SessionID,
		Role:        actor.Role,
		Departments: actor.Departments,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
