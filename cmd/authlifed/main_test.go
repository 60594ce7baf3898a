package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authlife/secret"
)

const (
	testSeed  = "seed-0123456789abcdef0123456789abcdef"
	testAdmin = "admin-token"
)

func testViper(redisAddr string) *viper.Viper {
	v := viper.New()
	v.Set("APP_ENV", "test")
	v.Set("JWT_SECRET", testSeed)
	v.Set("METRICS_ENABLED", "true")
	v.Set(keyAdminToken, testAdmin)
	if redisAddr != "" {
		v.Set(keyRedisAddr, redisAddr)
	}
	return v
}

func testApp(t *testing.T, v *viper.Viper) *app {
	t.Helper()
	return &app{
		v:        v,
		settings: loadSettings(v),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSecretGenerate(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommandFor(&app{v: viper.New()})
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"secret", "generate"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	value, ok := strings.CutPrefix(lines[0], "JWT_SECRET=")
	require.True(t, ok)
	assert.Len(t, value, secret.EncodedSize)
	assert.Equal(t, "# fingerprint "+secret.Fingerprint(value), lines[1])
}

func TestSecretGenerateQuiet(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommandFor(&app{v: viper.New()})
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"secret", "generate", "-q"})
	require.NoError(t, root.Execute())

	assert.Len(t, strings.TrimSpace(out.String()), secret.EncodedSize)
}

func TestInvalidLogLevel(t *testing.T) {
	root := newRootCommandFor(&app{v: viper.New()})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--log-level", "loud", "secret", "generate"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadSettingsDefaults(t *testing.T) {
	s := loadSettings(viper.New())
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, defaultHTTPAddr, s.HTTPAddr)
	assert.Equal(t, defaultSweepInterval, s.SweepInterval)
	assert.False(t, s.AuditLog)

	v := viper.New()
	v.Set(keySweepInterval, "not-a-duration")
	assert.Equal(t, defaultSweepInterval, loadSettings(v).SweepInterval)
}

func TestOpenRuntimeRequiresBackend(t *testing.T) {
	a := testApp(t, testViper(""))
	_, err := openRuntime(context.Background(), a, runtimeOptions{})
	require.ErrorIs(t, err, errNoBackend)
}

func TestKeysinkChannelRequiresRedis(t *testing.T) {
	_, err := keyNotifier(context.Background(), settings{KeysinkChannel: "rotations"}, nil)
	require.Error(t, err)

	n, err := keyNotifier(context.Background(), settings{}, nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestSweepCommand(t *testing.T) {
	mr := miniredis.RunT(t)

	var out bytes.Buffer
	root := newRootCommandFor(&app{v: testViper(mr.Addr())})
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"sweep"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "removed 0 expired sessions\n", out.String())
}

type apiFixture struct {
	server *httptest.Server
	rt     *runtime
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	v := testViper("")
	v.Set(keyKeysinkChannel, "authlife:test-rotations")
	a := testApp(t, v)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rt, err := openRuntime(context.Background(), a, runtimeOptions{redis: client})
	require.NoError(t, err)
	t.Cleanup(rt.close)

	srv := httptest.NewServer(newRouter(rt.engine, a.logger, a.settings.AdminToken))
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, rt: rt}
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *apiFixture) login(t *testing.T, userID string) createSessionResponse {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/v1/admin/sessions", testAdmin, createSessionRequest{UserID: userID, Role: "member"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[createSessionResponse](t, resp)
}

func TestAPIHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.login(t, "user-1")

	resp = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "authlife_session_created_total 1")
}

func TestAPIAdminRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/admin/sessions", "", createSessionRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/admin/rotation", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/admin/sessions", testAdmin, createSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIAdminRoutesOmittedWithoutToken(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(newRouter(f.rt.engine, f.rt.logger, ""))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/admin/rotation")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPISessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	created := f.login(t, "user-1")
	require.NotEmpty(t, created.AccessToken)
	require.NotEmpty(t, created.SessionToken)
	assert.False(t, created.Session.MFAVerified)

	resp := f.do(t, http.MethodGet, "/v1/session", created.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[sessionView](t, resp)
	assert.Equal(t, created.Session.ID, view.ID)
	assert.Equal(t, "user-1", view.UserID)

	resp = f.do(t, http.MethodPost, "/v1/admin/sessions/"+created.Session.ID+"/mfa", testAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[sessionView](t, resp).MFAVerified)

	resp = f.do(t, http.MethodPost, "/v1/admin/sessions/missing/mfa", testAdmin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/v1/session", created.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/session", created.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIUserSessions(t *testing.T) {
	f := newAPIFixture(t)
	f.login(t, "user-1")
	f.login(t, "user-1")
	other := f.login(t, "user-2")

	resp := f.do(t, http.MethodGet, "/v1/admin/users/user-1/sessions", testAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]sessionView](t, resp), 2)

	resp = f.do(t, http.MethodDelete, "/v1/admin/users/user-1/sessions", testAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int{"invalidated": 2}, decode[map[string]int](t, resp))

	resp = f.do(t, http.MethodGet, "/v1/session", other.AccessToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRotation(t *testing.T) {
	f := newAPIFixture(t)
	sub := f.rt.redis.Subscribe(context.Background(), "authlife:test-rotations")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	created := f.login(t, "user-1")
	before := f.rt.engine.Secrets().CurrentFingerprint()

	resp := f.do(t, http.MethodPost, "/v1/admin/rotation", testAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[rotationView](t, resp)
	assert.NotEqual(t, before, rotated.Fingerprint)
	assert.Equal(t, uint64(1), rotated.RotationCount)
	assert.False(t, rotated.Emergency)

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, rotated.Fingerprint)
	assert.NotContains(t, msg.Payload, f.rt.engine.Secrets().GetCurrentSecret())

	// previous secret still verifies
	resp = f.do(t, http.MethodGet, "/v1/session", created.AccessToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/admin/rotation", testAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[rotationStatusView](t, resp)
	assert.Equal(t, 1, status.PreviousSecretsCount)
	assert.Equal(t, rotated.Fingerprint, status.Fingerprint)
	assert.False(t, status.AutoRotationEnabled)

	resp = f.do(t, http.MethodPost, "/v1/admin/rotation/emergency", testAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[rotationView](t, resp).Emergency)

	resp = f.do(t, http.MethodGet, "/v1/session", created.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, f.rt.engine.Secrets().RotationStatus().PreviousSecretsCount)
}
