package service

import (
	"time"

	"github.com/gallery-dev/gallery/shared/domain"
)

// Sessions turns a confirmed user into what the client receives: a signed
// short-lived access token and, when one was issued, the opaque refresh token.
type Sessions struct {
	jwt AccessTokenIssuer
	now func() time.Time
}

func NewSessions(jwt AccessTokenIssuer) *Sessions {
	return &Sessions{jwt: jwt, now: time.Now}
}

func (s *Sessions) Issue(user domain.UserSummary, refreshToken string, refreshExpires time.Time) (domain.Session, error) {
	session, err := s.IssueAccess(user)
	if err != nil {
		return domain.Session{}, err
	}
	session.RefreshToken = refreshToken
	session.RefreshExpires = refreshExpires
	return session, nil
}

// IssueAccess mints only the access token, for refreshes that keep the refresh token.
func (s *Sessions) IssueAccess(user domain.UserSummary) (domain.Session, error) {
	issuedAt := s.now()
	accessToken, err := s.jwt.NewToken(user)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		AccessToken:   accessToken,
		AccessExpires: issuedAt.Add(s.jwt.TTL()),
	}, nil
}
