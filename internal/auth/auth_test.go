package auth_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"signin_service/internal/auth"
	"signin_service/internal/lib/jwt"
	"signin_service/internal/lib/random"
	"signin_service/internal/metrics"
	"signin_service/internal/models"
	"signin_service/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testAppURL = "http://localhost:8080"
)

type fakeStore struct {
	mu               sync.Mutex
	nextUserID       int64
	users            map[int64]models.User
	verTokens        map[string]models.VerificationToken
	refTokens        []models.RefreshToken
	conflictOnCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[int64]models.User),
		verTokens: make(map[string]models.VerificationToken),
	}
}

func (s *fakeStore) UserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (s *fakeStore) CreateUser(_ context.Context, email string, role models.Role) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflictOnCreate {
		return models.User{}, storage.ErrUserExists
	}

	for _, u := range s.users {
		if u.Email == email {
			return models.User{}, storage.ErrUserExists
		}
	}

	s.nextUserID++
	u := models.User{
		ID:        s.nextUserID,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.users[u.ID] = u

	return u, nil
}

func (s *fakeStore) VerifyEmail(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	now := time.Now()
	u.EmailVerifiedAt = &now
	u.UpdatedAt = now
	s.users[id] = u

	return u, nil
}

func (s *fakeStore) CreateVerificationToken(_ context.Context, identifier string, ttl time.Duration) (models.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := random.TokenValue()
	if err != nil {
		return models.VerificationToken{}, err
	}

	vt := models.VerificationToken{
		Identifier: identifier,
		Token:      value,
		Expires:    time.Now().Add(ttl),
		CreatedAt:  time.Now(),
	}
	s.verTokens[value] = vt

	return vt, nil
}

func (s *fakeStore) VerificationTokenByValue(_ context.Context, token string) (models.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vt, ok := s.verTokens[token]
	if !ok {
		return models.VerificationToken{}, storage.ErrVerificationTokenNotFound
	}
	return vt, nil
}

func (s *fakeStore) DeleteVerificationToken(_ context.Context, identifier, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vt, ok := s.verTokens[token]
	if !ok || vt.Identifier != identifier {
		return 0, nil
	}

	delete(s.verTokens, token)
	return 1, nil
}

func (s *fakeStore) DeleteVerificationTokens(_ context.Context, identifier string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for value, vt := range s.verTokens {
		if vt.Identifier == identifier {
			delete(s.verTokens, value)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CreateRefreshToken(_ context.Context, userID int64, ttl time.Duration) (models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := random.TokenValue()
	if err != nil {
		return models.RefreshToken{}, err
	}

	rt := models.RefreshToken{
		ID:        int64(len(s.refTokens) + 1),
		UserID:    userID,
		Token:     value,
		Expires:   time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	s.refTokens = append(s.refTokens, rt)

	return rt, nil
}

func (s *fakeStore) tokenCountFor(identifier string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, vt := range s.verTokens {
		if vt.Identifier == identifier {
			n++
		}
	}
	return n
}

func (s *fakeStore) insertExpiredToken(identifier string) models.VerificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, _ := random.TokenValue()
	vt := models.VerificationToken{
		Identifier: identifier,
		Token:      value,
		Expires:    time.Now().Add(-time.Minute),
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	s.verTokens[value] = vt

	return vt
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []models.Message
}

func (p *fakePublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePublisher) lastToken(t *testing.T) string {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	require.NotEmpty(t, p.sent)

	body := p.sent[len(p.sent)-1].Body
	parts := strings.Split(body, "/auth/continue/")
	require.Len(t, parts, 2)

	return strings.Fields(parts[1])[0]
}

func newTestFlow(store *fakeStore, pub *fakePublisher) *auth.Auth {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return auth.New(
		log,
		store,
		store,
		store,
		pub,
		metrics.New(),
		testAppURL,
		testSecret,
		time.Hour,
		720*time.Hour,
		24*time.Hour,
	)
}

func TestRequestSignIn_QueuesEmailWithToken(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	flow := newTestFlow(store, pub)

	err := flow.RequestSignIn(context.Background(), "new@example.com")
	require.NoError(t, err)

	require.Len(t, pub.sent, 1)
	require.Equal(t, "new@example.com", pub.sent[0].Email)

	token := pub.lastToken(t)
	_, err = store.VerificationTokenByValue(context.Background(), token)
	require.NoError(t, err)

	// No user is materialized at request time.
	_, err = store.UserByEmail(context.Background(), "new@example.com")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestRequestSignIn_SecondRequestInvalidatesFirst(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	flow := newTestFlow(store, pub)

	ctx := context.Background()

	require.NoError(t, flow.RequestSignIn(ctx, "a@example.com"))
	firstToken := pub.lastToken(t)

	require.NoError(t, flow.RequestSignIn(ctx, "a@example.com"))

	require.Equal(t, 1, store.tokenCountFor("a@example.com"))

	_, _, err := flow.RedeemSignIn(ctx, firstToken)
	require.ErrorIs(t, err, auth.ErrInvalidVerificationToken)
}

func TestRedeemSignIn_Success(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	flow := newTestFlow(store, pub)

	ctx := context.Background()

	require.NoError(t, flow.RequestSignIn(ctx, "new@example.com"))
	token := pub.lastToken(t)

	accessToken, refreshToken, err := flow.RedeemSignIn(ctx, token)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	user, err := store.UserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	require.True(t, user.IsVerified())
	require.Equal(t, models.RoleUser, user.Role)

	claims, err := jwt.ParseAccessToken(testSecret, accessToken)
	require.NoError(t, err)
	userID, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)
	require.Equal(t, user.Email, claims.Email)

	require.Len(t, store.refTokens, 1)
	require.Equal(t, user.ID, store.refTokens[0].UserID)
	require.Equal(t, refreshToken, store.refTokens[0].Token)

	// Single use: the token row is gone.
	require.Equal(t, 0, store.tokenCountFor("new@example.com"))
}

func TestRedeemSignIn_SecondRedemptionFails(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	flow := newTestFlow(store, pub)

	ctx := context.Background()

	require.NoError(t, flow.RequestSignIn(ctx, "twice@example.com"))
	token := pub.lastToken(t)

	_, _, err := flow.RedeemSignIn(ctx, token)
	require.NoError(t, err)

	_, _, err = flow.RedeemSignIn(ctx, token)
	require.ErrorIs(t, err, auth.ErrInvalidVerificationToken)
}

func TestRedeemSignIn_UnknownToken(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	flow := newTestFlow(store, &fakePublisher{})

	_, _, err := flow.RedeemSignIn(context.Background(), "never-issued")
	require.ErrorIs(t, err, auth.ErrInvalidVerificationToken)
}

func TestRedeemSignIn_ExpiredToken(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	flow := newTestFlow(store, &fakePublisher{})

	ctx := context.Background()

	vt := store.insertExpiredToken("late@example.com")

	_, _, err := flow.RedeemSignIn(ctx, vt.Token)
	require.ErrorIs(t, err, auth.ErrVerificationTokenExpired)

	// Expiry is terminal: the token is consumed and a retry reports invalid.
	require.Equal(t, 0, store.tokenCountFor("late@example.com"))

	_, _, err = flow.RedeemSignIn(ctx, vt.Token)
	require.ErrorIs(t, err, auth.ErrInvalidVerificationToken)
}

func TestRedeemSignIn_ExistingUserIsReused(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	flow := newTestFlow(store, pub)

	ctx := context.Background()

	existing, err := store.CreateUser(ctx, "known@example.com", models.RoleAdmin)
	require.NoError(t, err)

	require.NoError(t, flow.RequestSignIn(ctx, "known@example.com"))
	token := pub.lastToken(t)

	_, _, err = flow.RedeemSignIn(ctx, token)
	require.NoError(t, err)

	user, err := store.UserByEmail(ctx, "known@example.com")
	require.NoError(t, err)
	require.Equal(t, existing.ID, user.ID)
	require.Equal(t, models.RoleAdmin, user.Role)
	require.True(t, user.IsVerified())
}

func TestRedeemSignIn_CreateConflictFallsBackToLookup(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	flow := newTestFlow(store, pub)

	ctx := context.Background()

	require.NoError(t, flow.RequestSignIn(ctx, "raced@example.com"))
	token := pub.lastToken(t)

	// Simulate a concurrent creation: the insert reports a duplicate while
	// the row appears between the lookup and the retry.
	store.mu.Lock()
	store.conflictOnCreate = true
	store.nextUserID++
	raced := models.User{
		ID:        store.nextUserID,
		Email:     "raced@example.com",
		Role:      models.RoleUser,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	store.mu.Unlock()

	_, _, err := flow.RedeemSignIn(ctx, token)
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	store.mu.Lock()
	store.users[raced.ID] = raced
	store.mu.Unlock()

	require.NoError(t, flow.RequestSignIn(ctx, "raced@example.com"))
	token = pub.lastToken(t)

	accessToken, _, err := flow.RedeemSignIn(ctx, token)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
}
