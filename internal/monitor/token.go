package monitor

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

// Claims are the identity fields read from a bearer token.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// TokenParser extracts identity claims from a JWT. Tokens are issued elsewhere; with a
// secret the HMAC signature is verified, without one the token is only decoded.
type TokenParser struct {
	secret []byte
}

// NewTokenParser creates a parser. An empty secret disables signature verification.
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// Verifies reports whether signatures are checked.
func (p *TokenParser) Verifies() bool {
	return len(p.secret) > 0
}

// Parse returns the claims of raw, which may carry a "Bearer " prefix.
func (p *TokenParser) Parse(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return Claims{}, apperrors.Unauthorized("missing token")
	}

	claims := jwt.MapClaims{}
	var err error
	if p.Verifies() {
		_, err = jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return p.secret, nil
		})
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(raw, claims)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperrors.AuthenticationExpired("token expired", err)
		}
		return Claims{}, &apperrors.AppError{
			Code:    "UNAUTHORIZED",
			Message: "invalid token",
			Status:  http.StatusUnauthorized,
			Err:     errors.Join(apperrors.ErrUnauthorized, err),
		}
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return Claims{}, apperrors.Unauthorized("token has no user id")
	}

	out := Claims{UserID: userID}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}
	return out, nil
}
