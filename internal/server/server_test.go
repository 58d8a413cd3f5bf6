package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/fitback/internal/config"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/notify"
	"github.com/iliyamo/fitback/internal/repository"
	"github.com/iliyamo/fitback/internal/service"
	"github.com/iliyamo/fitback/internal/utils"
	"github.com/iliyamo/fitback/internal/worker"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (o *outbox) Dispatch(_ context.Context, n notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) kinds() []notify.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]notify.Kind, 0, len(o.sent))
	for _, n := range o.sent {
		out = append(out, n.Kind)
	}
	return out
}

func (o *outbox) last(kind notify.Kind) notify.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i]
		}
	}
	return notify.Notification{}
}

type harness struct {
	e        *echo.Echo
	box      *outbox
	notifier *service.Notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Config{
		Env:                        "test",
		AdminEmails:                []string{"admin@x.com"},
		SendVerificationOnRegister: true,
		RateLimit:                  config.RateLimitConfig{Enabled: false},
		Cache:                      config.CacheConfig{Enabled: false},
	}
	mem := repository.NewMemory()
	box := &outbox{}
	n := service.NewNotifier(box, logging.Nop{})
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	issuer := utils.NewTokenIssuer("server-secret", time.Hour)
	auth := service.NewAuthService(mem, mem, &hasher, issuer, n, logging.Nop{}, service.AuthOptions{
		VerificationTTL: 24 * time.Hour, ResetTTL: time.Hour, SendVerificationOnRegister: true,
		PublicBaseURL: "http://localhost:5005",
	})
	users := service.NewUserService(mem, mem, &hasher, n, logging.Nop{})
	e := newEcho(cfg, logging.Nop{}, services{auth: auth, users: users, tokens: issuer})
	return &harness{e: e, box: box, notifier: n}
}

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

func (h *harness) call(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	creds := func(pw string) echo.Map { return echo.Map{"email": "a@x.com", "password": pw} }

	rec, env := h.call(t, http.MethodPost, "/api/auth/registro", "", echo.Map{
		"email": "a@x.com", "password": "Passw0rd!", "usuario": "userA",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := env.Data["token"]

	rec, env = h.call(t, http.MethodPost, "/api/auth/login", "", creds("Passw0rd!"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, registered, env.Data["token"])

	rec, _ = h.call(t, http.MethodPost, "/api/auth/forgot-password", "", echo.Map{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	h.notifier.Wait()
	reset := h.box.last(notify.KindPasswordReset)
	require.NotEmpty(t, reset.Token)
	assert.Equal(t, "a@x.com", reset.To)

	rec, _ = h.call(t, http.MethodPost, "/api/auth/reset-password", "", echo.Map{"token": reset.Token, "nuevaPassword": "NewPass1!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = h.call(t, http.MethodPost, "/api/auth/login", "", creds("Passw0rd!"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error)

	rec, _ = h.call(t, http.MethodPost, "/api/auth/login", "", creds("NewPass1!"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.call(t, http.MethodPost, "/api/auth/reset-password", "", echo.Map{"token": reset.Token, "nuevaPassword": "Other1!aa"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", env.Error)

	h.notifier.Wait()
	assert.ElementsMatch(t, []notify.Kind{notify.KindEmailVerification, notify.KindPasswordReset, notify.KindPasswordChanged}, h.box.kinds())
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	_, user := h.call(t, http.MethodPost, "/api/auth/registro", "", echo.Map{"email": "a@x.com", "password": "Passw0rd!", "usuario": "userA"})
	_, admin := h.call(t, http.MethodPost, "/api/auth/registro", "", echo.Map{"email": "Admin@x.com", "password": "Passw0rd!", "usuario": "boss"})
	userToken, _ := user.Data["token"].(string)
	adminToken, _ := admin.Data["token"].(string)

	rec, _ := h.call(t, http.MethodGet, "/api/usuarios", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := h.call(t, http.MethodGet, "/api/usuarios", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error)

	rec, env = h.call(t, http.MethodGet, "/api/usuarios?limite=1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2.0, env.Data["total"])
	assert.Equal(t, 2.0, env.Data["totalPaginas"])

	rec, env = h.call(t, http.MethodGet, "/api/usuarios/1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "userA", env.Data["usuario"])

	rec, _ = h.call(t, http.MethodGet, "/api/usuarios/perfil", userToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	h := newHarness(t)

	rec, env := h.call(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "test", env.Data["entorno"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))

	rec, env = h.call(t, http.MethodGet, "/api/nada", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Ruta /api/nada no encontrada", env.Message)
}

func TestBearerErrors(t *testing.T) {
	h := newHarness(t)
	expired, err := utils.NewTokenIssuer("server-secret", time.Hour).Issue(utils.Identity{UserID: 1, Email: "a@x.com"}, -time.Minute)
	require.NoError(t, err)
	foreign, err := utils.NewTokenIssuer("elsewhere", time.Hour).IssueDefault(utils.Identity{UserID: 1, Email: "a@x.com"})
	require.NoError(t, err)

	cases := map[string]string{
		"":            "NO_TOKEN",
		expired.Token: "TOKEN_EXPIRED",
		foreign.Token: "INVALID_SIGNATURE",
		"garbage":     "MALFORMED_TOKEN",
	}
	for token, code := range cases {
		rec, env := h.call(t, http.MethodGet, "/api/auth/verificar-token", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, code)
		assert.Equal(t, code, env.Error)
	}
}

func TestNewMailer(t *testing.T) {
	m, err := newMailer(context.Background(), config.MailConfig{Driver: "log"}, logging.Nop{})
	require.NoError(t, err)
	assert.IsType(t, notify.LogMailer{}, m)

	_, err = newMailer(context.Background(), config.MailConfig{Driver: "carrier-pigeon"}, logging.Nop{})
	assert.Error(t, err)
}

type purgeFunc func(context.Context) (int64, error)

func (f purgeFunc) PurgeExpiredTokens(ctx context.Context) (int64, error) { return f(ctx) }

// newBareApp wires an App without external connections.
func newBareApp(t *testing.T) *App {
	t.Helper()
	h := newHarness(t)
	a := &App{
		cfg:      config.Config{Port: "0", Env: "test"},
		log:      logging.Nop{},
		echo:     h.e,
		notifier: h.notifier,
		sweeper: worker.NewTokenSweeper(purgeFunc(func(context.Context) (int64, error) {
			return 0, nil
		}), time.Millisecond, logging.Nop{}),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a
}

func TestAppShutdownBeforeStart(t *testing.T) {
	a := newBareApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	assert.NoError(t, a.Start())
}

func TestAppConcurrentStartShutdown(t *testing.T) {
	a := newBareApp(t)
	started := make(chan error, 1)
	go func() { started <- a.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))

	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Start did not return after Shutdown")
	}
}
