package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	emailutil "github.com/gallery-dev/gallery/backend/internal/utils/email"
	"github.com/gallery-dev/gallery/shared/config"
	"github.com/gallery-dev/gallery/shared/domain"
	internal_errors "github.com/gallery-dev/gallery/shared/errors"
)

// --- Mocks ---

// MockAccountStore keeps rows in memory. A non-nil *Func field replaces the
// in-memory behaviour of that method.
type MockAccountStore struct {
	mu                 sync.Mutex
	nextUserId         domain.UserId
	nextTokenId        domain.RefreshTokenId
	users              map[domain.UserId]domain.User
	pending            map[domain.Email]domain.PendingUser
	refreshTokens      map[domain.RefreshTokenId]domain.RefreshToken
	verificationTokens map[string]domain.VerificationToken

	SaveUserFunc               func(ctx context.Context, user domain.User) (domain.UserId, error)
	UserByEmailFunc            func(ctx context.Context, email domain.Email) (domain.User, error)
	SavePendingUserFunc        func(ctx context.Context, p domain.PendingUser) error
	ConfirmPendingUserFunc     func(ctx context.Context, p domain.PendingUser) (domain.User, error)
	SaveRefreshTokenFunc       func(ctx context.Context, t domain.RefreshToken) (domain.RefreshTokenId, error)
	RefreshTokenWithUserFunc   func(ctx context.Context, token string) (domain.RefreshToken, domain.User, error)
	RotateRefreshTokenFunc     func(ctx context.Context, oldId domain.RefreshTokenId, next domain.RefreshToken) (domain.RefreshTokenId, error)
	RevokeAllRefreshTokensFunc func(ctx context.Context, userId domain.UserId) (int64, error)
}

func NewMockAccountStore() *MockAccountStore {
	return &MockAccountStore{
		users:              map[domain.UserId]domain.User{},
		pending:            map[domain.Email]domain.PendingUser{},
		refreshTokens:      map[domain.RefreshTokenId]domain.RefreshToken{},
		verificationTokens: map[string]domain.VerificationToken{},
	}
}

func notFound(what string) error {
	return &internal_errors.ErrorWithStatusCode{Message: what + " not found", StatusCode: http.StatusNotFound}
}

func conflict(what string) error {
	return &internal_errors.ErrorWithStatusCode{Message: what, StatusCode: http.StatusConflict}
}

func (m *MockAccountStore) SaveUser(ctx context.Context, user domain.User) (domain.UserId, error) {
	if m.SaveUserFunc != nil {
		return m.SaveUserFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUser(user)
}

func (m *MockAccountStore) saveUser(user domain.User) (domain.UserId, error) {
	for _, u := range m.users {
		if u.Email == user.Email {
			return -1, conflict("Email already registered")
		}
	}
	m.nextUserId++
	user.Id = m.nextUserId
	if user.Role == "" {
		user.Role = domain.RoleStandard
	}
	user.CreatedAt = time.Now()
	m.users[user.Id] = user
	return user.Id, nil
}

func (m *MockAccountStore) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	if m.UserByEmailFunc != nil {
		return m.UserByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, notFound("User")
}

func (m *MockAccountStore) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, notFound("User")
	}
	return u, nil
}

func (m *MockAccountStore) UpdateUserAvatar(ctx context.Context, id domain.UserId, avatarURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if ok && u.AvatarURL == "" {
		u.AvatarURL = avatarURL
		m.users[id] = u
	}
	return nil
}

func (m *MockAccountStore) SavePendingUser(ctx context.Context, p domain.PendingUser) error {
	if m.SavePendingUserFunc != nil {
		return m.SavePendingUserFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[p.Email]; ok {
		return conflict("Verification already sent")
	}
	p.CreatedAt = time.Now()
	m.pending[p.Email] = p
	return nil
}

func (m *MockAccountStore) PendingUserByEmail(ctx context.Context, email domain.Email) (domain.PendingUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[email]
	if !ok {
		return domain.PendingUser{}, notFound("Pending user")
	}
	return p, nil
}

func (m *MockAccountStore) PendingUserByToken(ctx context.Context, token string) (domain.PendingUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p.Token == token {
			return p, nil
		}
	}
	return domain.PendingUser{}, notFound("Pending user")
}

func (m *MockAccountStore) DeletePendingUser(ctx context.Context, email domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[email]; !ok {
		return notFound("Pending user")
	}
	delete(m.pending, email)
	return nil
}

func (m *MockAccountStore) ConfirmPendingUser(ctx context.Context, p domain.PendingUser) (domain.User, error) {
	if m.ConfirmPendingUserFunc != nil {
		return m.ConfirmPendingUserFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.pending[p.Email]
	if !ok || stored.Token != p.Token {
		return domain.User{}, notFound("Pending user")
	}
	user := domain.User{Email: p.Email, PassHash: p.PassHash, Name: p.Name, Role: domain.RoleStandard, Active: true}
	id, err := m.saveUser(user)
	if err != nil {
		return domain.User{}, err
	}
	delete(m.pending, p.Email)
	return m.users[id], nil
}

func (m *MockAccountStore) SaveRefreshToken(ctx context.Context, t domain.RefreshToken) (domain.RefreshTokenId, error) {
	if m.SaveRefreshTokenFunc != nil {
		return m.SaveRefreshTokenFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRefreshToken(t), nil
}

func (m *MockAccountStore) saveRefreshToken(t domain.RefreshToken) domain.RefreshTokenId {
	m.nextTokenId++
	t.Id = m.nextTokenId
	t.CreatedAt = time.Now()
	m.refreshTokens[t.Id] = t
	return t.Id
}

func (m *MockAccountStore) RefreshTokenWithUser(ctx context.Context, token string) (domain.RefreshToken, domain.User, error) {
	if m.RefreshTokenWithUserFunc != nil {
		return m.RefreshTokenWithUserFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.refreshTokens {
		if t.Token == token {
			return t, m.users[t.UserId], nil
		}
	}
	return domain.RefreshToken{}, domain.User{}, notFound("Refresh token")
}

func (m *MockAccountStore) RevokeRefreshToken(ctx context.Context, id domain.RefreshTokenId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refreshTokens[id]
	if !ok {
		return notFound("Refresh token")
	}
	t.Revoked = true
	m.refreshTokens[id] = t
	return nil
}

func (m *MockAccountStore) RevokeAllRefreshTokens(ctx context.Context, userId domain.UserId) (int64, error) {
	if m.RevokeAllRefreshTokensFunc != nil {
		return m.RevokeAllRefreshTokensFunc(ctx, userId)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeAll(userId), nil
}

func (m *MockAccountStore) revokeAll(userId domain.UserId) int64 {
	var n int64
	for id, t := range m.refreshTokens {
		if t.UserId == userId {
			t.Revoked = true
			m.refreshTokens[id] = t
			n++
		}
	}
	return n
}

func (m *MockAccountStore) RotateRefreshToken(ctx context.Context, oldId domain.RefreshTokenId, next domain.RefreshToken) (domain.RefreshTokenId, error) {
	if m.RotateRefreshTokenFunc != nil {
		return m.RotateRefreshTokenFunc(ctx, oldId, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.refreshTokens[oldId]
	if !ok || old.Revoked {
		return -1, notFound("Active refresh token")
	}
	old.Revoked = true
	m.refreshTokens[oldId] = old
	return m.saveRefreshToken(next), nil
}

func (m *MockAccountStore) SaveVerificationToken(ctx context.Context, t domain.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationTokens[t.Token] = t
	return nil
}

func (m *MockAccountStore) VerificationToken(ctx context.Context, token string) (domain.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.verificationTokens[token]
	if !ok {
		return domain.VerificationToken{}, notFound("Verification token")
	}
	return t, nil
}

func (m *MockAccountStore) MarkVerificationTokenUsed(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markUsed(token, at)
}

func (m *MockAccountStore) markUsed(token string, at time.Time) error {
	t, ok := m.verificationTokens[token]
	if !ok || t.UsedAt != nil {
		return notFound("Verification token")
	}
	t.UsedAt = &at
	m.verificationTokens[token] = t
	return nil
}

func (m *MockAccountStore) ResetPassword(ctx context.Context, token string, passHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.verificationTokens[token]
	if !ok || t.Type != domain.PasswordResetToken {
		return notFound("Verification token")
	}
	if err := m.markUsed(token, at); err != nil {
		return err
	}
	u := m.users[t.UserId]
	u.PassHash = passHash
	m.users[t.UserId] = u
	m.revokeAll(t.UserId)
	return nil
}

// seedUser stores a confirmed user directly.
func (m *MockAccountStore) seedUser(user domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.saveUser(user)
	if err != nil {
		panic(err)
	}
	return m.users[id]
}

func (m *MockAccountStore) setPending(p domain.PendingUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[p.Email] = p
}

func (m *MockAccountStore) tokensOf(userId domain.UserId) []domain.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshToken
	for _, t := range m.refreshTokens {
		if t.UserId == userId {
			out = append(out, t)
		}
	}
	return out
}

type sentEmail struct {
	To, Subject, Body string
}

type MockEmail struct {
	mu       sync.Mutex
	sent     []sentEmail
	SendFunc func(to, subject, body string) error
}

func (m *MockEmail) Send(to, subject, body string) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(to, subject, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *MockEmail) IsCorrect(address domain.Email) error {
	return emailutil.Validate(address)
}

func (m *MockEmail) Sent() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

type MockProvider struct {
	ExchangeFunc func(ctx context.Context, code string) (string, error)
	ProfileFunc  func(ctx context.Context, accessToken string) (domain.OAuthProfile, error)
}

func (m *MockProvider) AuthCodeURL(state string) string {
	return "https://provider.test/auth?state=" + state
}

func (m *MockProvider) Exchange(ctx context.Context, code string) (string, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	return "provider-access-token", nil
}

func (m *MockProvider) Profile(ctx context.Context, accessToken string) (domain.OAuthProfile, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, accessToken)
	}
	return domain.OAuthProfile{ProviderId: "p-1", Email: "oauth@example.com", Name: "Olga", Picture: "https://img.test/o.png"}, nil
}

type MockState struct{}

func (MockState) New() (string, error) { return "signed-state", nil }
func (MockState) Verify(state string) bool { return state == "signed-state" }

func testConfig() *config.Public {
	return &config.Public{
		FrontendURL:           "https://gallery.test",
		AccessTokenTTL:        config.DefaultAccessTokenTTL,
		RefreshTokenTTL:       config.DefaultRefreshTokenTTL,
		VerificationTokenTTL:  config.DefaultVerificationTokenTTL,
		PasswordResetTokenTTL: config.DefaultPasswordResetTokenTTL,
		OAuthTimeout:          time.Second,
	}
}
