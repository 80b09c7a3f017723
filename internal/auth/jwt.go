package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusconnect/internal/apperr"
	"campusconnect/internal/models"
)

// Claims represents the JWT payload.
type Claims struct {
	UserID string      `json:"id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 bearer tokens.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer; ttl is the token lifetime.
func NewSigner(key, issuer string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for the user's current id, email and role.
func (s *Signer) Issue(u models.User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func (s *Signer) Parse(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, apperr.Authentication("missing bearer token")
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperr.Wrap(apperr.KindAuthentication, "token expired", err)
		}
		return Claims{}, apperr.Wrap(apperr.KindAuthentication, "invalid token", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return Claims{}, apperr.Authentication("invalid token")
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Claims{}, apperr.Authentication("invalid token")
	}
	return *claims, nil
}
