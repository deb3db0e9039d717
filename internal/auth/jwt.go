package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/geocoder89/labshare/internal/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired matches any *ExpiredError via errors.Is.
	ErrTokenExpired = errors.New("token expired")
	// ErrSecretMissing is a deployment error, not a per-request failure.
	ErrSecretMissing error = &ConfigurationError{Reason: "signing secret is not configured"}
)

type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "auth configuration: " + e.Reason }

// ExpiredError is returned by Verify when the signature is good and the only
// failed check is expiry. Clients use it as the signal to call refresh.
type ExpiredError struct {
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return "token expired at " + e.ExpiredAt.UTC().Format(time.RFC3339)
}

func (e *ExpiredError) Is(target error) bool { return target == ErrTokenExpired }

type Claims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID prefers the userId claim and falls back to sub.
func (c *Claims) SubjectID() (int64, bool) {
	if c.UserID > 0 {
		return c.UserID, true
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type UserFinder interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
}

type RoleResolver interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

// Session is what login, register and refresh hand back to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      user.User
	Role      string
}

type Manager struct {
	secret       []byte
	ttl          time.Duration
	refreshGrace time.Duration
	now          func() time.Time
}

// NewManager builds the token service. refreshGrace bounds how long after
// expiry a token may still be exchanged; zero means no bound.
func NewManager(secret string, ttl, refreshGrace time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		secret:       []byte(secret),
		ttl:          ttl,
		refreshGrace: refreshGrace,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock swaps the time source; used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue signs a token for the subject. A non-positive ttl uses the default.
func (m *Manager) Issue(userID int64, email, role string, ttl time.Duration) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, ErrSecretMissing
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// NewSession issues a token for u carrying role.
func (m *Manager) NewSession(u user.User, role string) (Session, error) {
	token, expiresAt, err := m.Issue(u.ID, u.Email, role, 0)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: u, Role: role}, nil
}

// DecodeUnchecked reads the payload without checking signature or expiry.
// It is for inspection only and must never gate access on its own.
func (m *Manager) DecodeUnchecked(tokenStr string) (*Claims, bool) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Verify checks signature and expiry. Expiry alone yields *ExpiredError;
// anything else yields ErrInvalidToken.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, ErrSecretMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if onlyExpired(err) && claims.ExpiresAt != nil {
			return nil, &ExpiredError{ExpiredAt: claims.ExpiresAt.Time}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, ok := claims.SubjectID(); !ok {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Refresh exchanges a possibly expired token for a fresh one. The role is
// re-read from the membership table, not copied from the old token.
//
// It returns ErrInvalidToken when the token cannot be parsed, when its
// signature is not ours, when it expired longer ago than the refresh grace,
// or when its subject is missing or no longer exists.
func (m *Manager) Refresh(ctx context.Context, oldToken string, users UserFinder, roles RoleResolver) (Session, error) {
	if len(m.secret) == 0 {
		return Session{}, ErrSecretMissing
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(oldToken, claims, m.keyFunc); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if m.refreshGrace > 0 && claims.ExpiresAt != nil && m.now().Sub(claims.ExpiresAt.Time) > m.refreshGrace {
		return Session{}, fmt.Errorf("%w: past refresh window", ErrInvalidToken)
	}

	userID, ok := claims.SubjectID()
	if !ok {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	u, err := users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: subject no longer exists", ErrInvalidToken)
		}
		return Session{}, err
	}

	role, err := roles.RoleOf(ctx, u.ID)
	if err != nil {
		return Session{}, err
	}

	return m.NewSession(u, role)
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	// Enforce HS256
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return m.secret, nil
}

func onlyExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
		!errors.Is(err, jwt.ErrTokenMalformed) &&
		!errors.Is(err, jwt.ErrTokenNotValidYet) &&
		!errors.Is(err, jwt.ErrTokenUsedBeforeIssued)
}
