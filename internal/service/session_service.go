package service

import (
	"time"

	"github.com/xxxsen/docmem/internal/model"
	"github.com/xxxsen/docmem/internal/pkg/jwt"
)

type SessionService struct {
	jwtSecret []byte
	jwtTTL    time.Duration
	now       func() time.Time
}

func NewSessionService(secret []byte, ttl time.Duration) *SessionService {
	return &SessionService{jwtSecret: secret, jwtTTL: ttl, now: time.Now}
}

// Create mints a new scope and a token bound to it.
func (s *SessionService) Create() (*model.Session, error) {
	scope := newScopeID()
	token, err := jwt.GenerateToken(scope, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, err
	}
	return &model.Session{
		Scope:     scope,
		Token:     token,
		ExpiresAt: s.now().Add(s.jwtTTL).Unix(),
	}, nil
}

// Resolve returns the scope carried by token.
func (s *SessionService) Resolve(token string) (string, error) {
	claims, err := jwt.ParseToken(token, s.jwtSecret)
	if err != nil {
		return "", err
	}
	return claims.Scope, nil
}
