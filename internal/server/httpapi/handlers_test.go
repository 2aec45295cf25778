package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/smsbridge/internal/common"
	"github.com/dmitrijs2005/smsbridge/internal/cryptox"
	"github.com/dmitrijs2005/smsbridge/internal/dbx"
	"github.com/dmitrijs2005/smsbridge/internal/logging"
	"github.com/dmitrijs2005/smsbridge/internal/server/authn"
	"github.com/dmitrijs2005/smsbridge/internal/server/config"
	"github.com/dmitrijs2005/smsbridge/internal/server/fingerprint"
	"github.com/dmitrijs2005/smsbridge/internal/server/metrics"
	"github.com/dmitrijs2005/smsbridge/internal/server/models"
	apitokensrepo "github.com/dmitrijs2005/smsbridge/internal/server/repositories/apitokens"
	messagesrepo "github.com/dmitrijs2005/smsbridge/internal/server/repositories/messages"
	usersrepo "github.com/dmitrijs2005/smsbridge/internal/server/repositories/users"
	"github.com/dmitrijs2005/smsbridge/internal/server/services"
	"github.com/dmitrijs2005/smsbridge/internal/server/telegram"
)

const testSecret = "topsecret"

// --- fakes ---

type stubMessagesRepo struct {
	inserted bool
	id       int64
}

func (r *stubMessagesRepo) InsertIfAbsent(ctx context.Context, fp, from, body string, receivedAt *string) (bool, int64, error) {
	return r.inserted, r.id, nil
}

func (r *stubMessagesRepo) MarkDeliveryOutcome(ctx context.Context, id int64, msgID *int64, errStr *string) error {
	return nil
}

type stubUsersRepo struct {
	user      *models.User
	createErr error
	getErr    error
}

func (r *stubUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	out := *u
	out.ID = 1
	return &out, nil
}

func (r *stubUsersRepo) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.user, nil
}

func (r *stubUsersRepo) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	return nil
}

// stubTokensRepo doubles as the apitokens repository and the authn token
// verifier, keyed by token hash.
type stubTokensRepo struct {
	users map[string]*models.User
}

func (r *stubTokensRepo) Create(ctx context.Context, userID int64, tokenHash string) (int64, error) {
	return 1, nil
}

func (r *stubTokensRepo) FindUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	if u, ok := r.users[tokenHash]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (r *stubTokensRepo) TouchLastUsed(ctx context.Context, tokenHash string) error { return nil }

func (r *stubTokensRepo) Revoke(ctx context.Context, tokenHash string) error {
	if _, ok := r.users[tokenHash]; !ok {
		return common.ErrorNotFound
	}
	delete(r.users, tokenHash)
	return nil
}

type stubRepoManager struct {
	messages *stubMessagesRepo
	users    *stubUsersRepo
	tokens   *stubTokensRepo
}

func (m *stubRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *stubRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.users }
func (m *stubRepoManager) APITokens(db dbx.DBTX) apitokensrepo.Repository {
	return m.tokens
}
func (m *stubRepoManager) Messages(db dbx.DBTX) messagesrepo.Repository { return m.messages }

type stubNotifier struct {
	id    *int64
	err   error
	calls int
}

func (n *stubNotifier) Send(ctx context.Context, text, parseMode string) (*int64, error) {
	n.calls++
	return n.id, n.err
}

type testEnv struct {
	handler  http.Handler
	rm       *stubRepoManager
	notifier *stubNotifier
	mock     sqlmock.Sqlmock
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Secret = testSecret
	cfg.BotToken = "123:abc"
	cfg.ChatID = "42"
	cfg.AuthRequired = false
	if mutate != nil {
		mutate(cfg)
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	msgID := int64(900)
	rm := &stubRepoManager{
		messages: &stubMessagesRepo{inserted: true, id: 10},
		users:    &stubUsersRepo{},
		tokens:   &stubTokensRepo{users: map[string]*models.User{}},
	}
	notifier := &stubNotifier{id: &msgID}

	us := services.NewUserService(db, rm, logger)
	ss := services.NewSMSService(db, rm, fingerprint.New(cfg.DedupWindowSeconds), notifier,
		telegram.Format(cfg.TelegramFormat), metrics.Noop{}, logger)
	as := authn.NewService(authn.Policy{
		AuthRequired:        cfg.AuthRequired,
		AllowSecretFallback: cfg.AllowSecretFallback,
		AllowLegacySecret:   cfg.AllowLegacySecret,
		HMACWindowSeconds:   cfg.HMACWindowSeconds,
		Secret:              cfg.Secret,
	}, rm.tokens, logger)

	srv := NewServer(cfg, logger, us, ss, as, metrics.Noop{})

	return &testEnv{handler: srv.Handler(), rm: rm, notifier: notifier, mock: mock}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var parsed map[string]any
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func incomingBody(t *testing.T, secret string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"secret": secret,
		"from":   "+371200001",
		"body":   "hello",
	})
	require.NoError(t, err)
	return b
}

// --- tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(120), body["dedupWindowSeconds"])

	auth, ok := body["auth"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, auth["bearerRequired"])
	assert.Equal(t, true, auth["legacySecret"])
	assert.Equal(t, true, auth["hmac"])
	assert.Equal(t, float64(120), auth["hmacWindowSeconds"])
}

func TestIncoming_LegacySecret(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, testSecret), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["duplicate"])
	assert.Equal(t, float64(10), body["id"])
	assert.Equal(t, float64(900), body["telegram_message_id"])
	assert.Equal(t, 1, env.notifier.calls)
}

func TestIncoming_WrongSecret(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, "nope"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, 0, env.notifier.calls)
}

func TestIncoming_Duplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rm.messages.inserted = false

	w, body := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, testSecret), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, 0, env.notifier.calls)
}

func TestIncoming_BearerToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.AuthRequired = true })
	env.rm.tokens.users[cryptox.HashToken("goodtoken")] = &models.User{ID: 5, UserName: "alice"}

	// the payload secret is wrong; the bearer token alone must authenticate
	w, _ := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, "nope"),
		map[string]string{"Authorization": "Bearer goodtoken"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, testSecret),
		map[string]string{"Authorization": "Bearer badtoken"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "with auth required, the secret is not a fallback")
}

func TestIncoming_HMAC(t *testing.T) {
	env := newTestEnv(t, nil)

	body := incomingBody(t, "")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", ts, body)))
	sig := hex.EncodeToString(mac.Sum(nil))

	w, _ := env.do(t, http.MethodPost, "/sms/incoming", body,
		map[string]string{"X-Timestamp": ts, "X-Signature": sig})
	assert.Equal(t, http.StatusOK, w.Code)

	// a tampered body no longer matches the signature
	w, _ = env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, "x"),
		map[string]string{"X-Timestamp": ts, "X-Signature": sig})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIncoming_MissingFields(t *testing.T) {
	env := newTestEnv(t, nil)

	b, _ := json.Marshal(map[string]string{"secret": testSecret, "from": "+371200001"})
	w, body := env.do(t, http.MethodPost, "/sms/incoming", b, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["ok"])
}

func TestIncoming_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodPost, "/sms/incoming", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIncoming_TelegramNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.BotToken = "" })

	w, body := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, testSecret), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server not configured", body["error"])
}

func TestIncoming_MissingServerSecret(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Secret = "" })

	w, _ := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, "anything"), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIncoming_TelegramFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.notifier.id = nil
	env.notifier.err = errors.New(`{"ok":false,"description":"chat not found"}`)

	w, body := env.do(t, http.MethodPost, "/sms/incoming", incomingBody(t, testSecret), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["error"], "telegram error:")
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	b, _ := json.Marshal(map[string]string{"username": "alice", "email": "alice@example.com", "password": "s3cret"})
	w, body := env.do(t, http.MethodPost, "/auth/signup", b, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["token"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
}

func TestSignup_MissingFields(t *testing.T) {
	env := newTestEnv(t, nil)

	b, _ := json.Marshal(map[string]string{"username": "alice"})
	w, _ := env.do(t, http.MethodPost, "/auth/signup", b, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignup_Conflict(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rm.users.createErr = common.ErrorAlreadyExists
	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	b, _ := json.Marshal(map[string]string{"username": "alice", "email": "alice@example.com", "password": "s3cret"})
	w, body := env.do(t, http.MethodPost, "/auth/signup", b, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user already exists", body["error"])
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rm.users.getErr = common.ErrorNotFound

	b, _ := json.Marshal(map[string]string{"identifier": "ghost", "password": "s3cret"})
	w, _ := env.do(t, http.MethodPost, "/auth/login", b, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rm.tokens.users[cryptox.HashToken("goodtoken")] = &models.User{ID: 5}

	w, body := env.do(t, http.MethodPost, "/auth/logout", nil,
		map[string]string{"Authorization": "Bearer goodtoken"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	// the token is gone now
	w, _ = env.do(t, http.MethodPost, "/auth/logout", nil,
		map[string]string{"Authorization": "Bearer goodtoken"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_NoToken(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
