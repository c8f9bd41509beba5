// Package auth resolves bearer credentials to participant ids for the
// connection-upgrade gateway. The relays themselves never see a
// credential; once a session exists its identity is fixed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parleychat/parley/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Resolver validates HS256 tokens and extracts the participant id from
// the subject claim. Expired tokens are rejected by the jwt parser.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

func (r *Resolver) Resolve(token string) (domain.ParticipantID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.ParticipantID(sub), nil
}

// Sign issues a token for pid, valid for ttl. Used by the callctl harness
// and by tests; production tokens come from the auth collaborator.
func (r *Resolver) Sign(pid domain.ParticipantID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   string(pid),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(r.secret)
}
