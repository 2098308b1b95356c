package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

type noopBus struct{}

func (noopBus) Publish(eventType string, alert *models.Alert) {}

type noopPoller struct{ called bool }

func (p *noopPoller) PollNow(ctx context.Context, targetID string) error {
	p.called = true
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *noopPoller) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	registry := addons.New(s.Addons)
	engine := alertengine.New(s.Alerts, noopBus{})
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	poller := &noopPoller{}
	srv := New(s, registry, engine, issuer, poller).WithCredentialResolver(store.NewEnvCredentialResolver())
	return srv, s, poller
}

func createUser(t *testing.T, s *store.Store, username string, role models.Role, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{
		ID: username, Username: username, Role: role, IsActive: true,
		PasswordHash: hash, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint_NoAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestProtectedEndpoint_RejectsWithoutCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/api/v1/alerts", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_Success(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "alice", models.RoleOperator, "hunter22")

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "alice", Password: "hunter22"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.AccessToken)
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "alice", models.RoleOperator, "hunter22")

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "alice", Password: "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken_GrantsAccessToOwnRole(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "viewer1", models.RoleViewer, "password1")

	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "viewer1", Password: "password1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))

	rec := doJSON(t, srv.Router(), "GET", "/api/v1/alerts", nil, map[string]string{"Authorization": "Bearer " + tok.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)

	// Viewer role cannot create targets (requires operator).
	rec2 := doJSON(t, srv.Router(), "POST", "/api/v1/targets",
		targetRequest{IPAddress: "10.0.0.1", AddonID: "missing"},
		map[string]string{"Authorization": "Bearer " + tok.AccessToken})
	require.Equal(t, http.StatusForbidden, rec2.Code)
}

func TestAPIKeyAuth_Works(t *testing.T) {
	srv, s, _ := newTestServer(t)
	u := createUser(t, s, "svc1", models.RoleService, "unused-password")

	plaintext, hash, prefix, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, s.APIKeys.Create(context.Background(), &models.APIKey{
		ID: "k1", UserID: u.ID, Name: "ci", KeyHash: hash, KeyPrefix: prefix,
		IsActive: true, CreatedAt: time.Now().UTC(),
	}))

	rec := doJSON(t, srv.Router(), "GET", "/api/v1/alerts", nil, map[string]string{"X-API-Key": plaintext})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTarget_DuplicateReturnsConflict(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "op1", models.RoleOperator, "password1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "op1", Password: "password1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	manifest := &models.Manifest{
		ID: "prtg", Name: "PRTG", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "prtg"},
		Parser:  models.ParserBlock{Type: models.ParserJSON},
	}
	require.NoError(t, srv.registry.Install(context.Background(), manifest, true))

	req := targetRequest{Name: "core-switch", IPAddress: "10.0.0.9", AddonID: "prtg", PollIntervalSeconds: 60}
	rec1 := doJSON(t, srv.Router(), "POST", "/api/v1/targets", req, authHeader)
	require.Equal(t, http.StatusCreated, rec1.Code)

	rec2 := doJSON(t, srv.Router(), "POST", "/api/v1/targets", req, authHeader)
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestDeleteUser_CannotDeleteAdmin(t *testing.T) {
	srv, s, _ := newTestServer(t)
	admin := createUser(t, s, "admin", models.RoleAdmin, "adminpass1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "admin", Password: "adminpass1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))

	rec := doJSON(t, srv.Router(), "DELETE", "/api/v1/users/"+admin.ID, nil, map[string]string{"Authorization": "Bearer " + tok.AccessToken})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_SetThenList(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "admin", models.RoleAdmin, "adminpass1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "admin", Password: "adminpass1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	rec := doJSON(t, srv.Router(), "PUT", "/api/v1/settings/log_level", setSettingRequest{Value: "debug"}, authHeader)
	require.Equal(t, http.StatusNoContent, rec.Code)

	listRec := doJSON(t, srv.Router(), "GET", "/api/v1/settings", nil, authHeader)
	require.Equal(t, http.StatusOK, listRec.Code)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &body))
	require.Equal(t, "debug", body["settings"]["log_level"])
}

func TestSetTargetCredentials_Overrides(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "admin", models.RoleAdmin, "adminpass1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "admin", Password: "adminpass1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	require.NoError(t, s.Targets.Create(context.Background(), &models.Target{
		ID: "t2", Name: "sw2", IPAddress: "10.0.0.6", AddonID: "none", PollIntervalSeconds: 60, Enabled: true,
	}))

	rec := doJSON(t, srv.Router(), "PUT", "/api/v1/targets/t2/credentials",
		setCredentialsRequest{CredentialType: "snmp", Credentials: map[string]string{"community": "secret"}},
		authHeader)
	require.Equal(t, http.StatusNoContent, rec.Code)

	creds, err := srv.creds.Resolve(context.Background(), "10.0.0.6", "snmp")
	require.NoError(t, err)
	require.Equal(t, "secret", creds["community"])
}

func TestAuditLog_RecordsLogin(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "admin", models.RoleAdmin, "adminpass1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "admin", Password: "adminpass1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	rec := doJSON(t, srv.Router(), "GET", "/api/v1/audit", nil, authHeader)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["entries"])
	require.Equal(t, "login", body["entries"][0]["action"])
}

func TestAcknowledge_ThenResolve(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "op1", models.RoleOperator, "password1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "op1", Password: "password1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	addon := &models.Manifest{
		ID: "siklu", Name: "Siklu", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "siklu"},
		Parser:  models.ParserBlock{Type: models.ParserJSON},
	}
	require.NoError(t, srv.registry.Install(context.Background(), addon, true))
	a, err := srv.engine.Process(context.Background(), &models.ParsedAlert{
		AddonID: "siklu", AlertType: "link_down", DeviceIP: "10.0.0.5",
	}, addon)
	require.NoError(t, err)

	ackRec := doJSON(t, srv.Router(), "POST", "/api/v1/alerts/"+a.ID+"/acknowledge", nil, authHeader)
	require.Equal(t, http.StatusOK, ackRec.Code)

	resolveRec := doJSON(t, srv.Router(), "POST", "/api/v1/alerts/"+a.ID+"/resolve", nil, authHeader)
	require.Equal(t, http.StatusOK, resolveRec.Code)
}

func TestAcknowledge_AlreadyAcknowledgedReturnsBadRequest(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "op1", models.RoleOperator, "password1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "op1", Password: "password1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	addon := &models.Manifest{
		ID: "siklu", Name: "Siklu", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "siklu"},
		Parser:  models.ParserBlock{Type: models.ParserJSON},
	}
	require.NoError(t, srv.registry.Install(context.Background(), addon, true))
	a, err := srv.engine.Process(context.Background(), &models.ParsedAlert{
		AddonID: "siklu", AlertType: "link_down", DeviceIP: "10.0.0.5",
	}, addon)
	require.NoError(t, err)

	first := doJSON(t, srv.Router(), "POST", "/api/v1/alerts/"+a.ID+"/acknowledge", nil, authHeader)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, srv.Router(), "POST", "/api/v1/alerts/"+a.ID+"/acknowledge", nil, authHeader)
	require.Equal(t, http.StatusBadRequest, second.Code)
}

func TestResolve_AlreadyResolvedReturnsBadRequest(t *testing.T) {
	srv, s, _ := newTestServer(t)
	createUser(t, s, "op1", models.RoleOperator, "password1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "op1", Password: "password1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	addon := &models.Manifest{
		ID: "siklu", Name: "Siklu", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "siklu"},
		Parser:  models.ParserBlock{Type: models.ParserJSON},
	}
	require.NoError(t, srv.registry.Install(context.Background(), addon, true))
	a, err := srv.engine.Process(context.Background(), &models.ParsedAlert{
		AddonID: "siklu", AlertType: "link_down", DeviceIP: "10.0.0.5",
	}, addon)
	require.NoError(t, err)

	first := doJSON(t, srv.Router(), "POST", "/api/v1/alerts/"+a.ID+"/resolve", nil, authHeader)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, srv.Router(), "POST", "/api/v1/alerts/"+a.ID+"/resolve", nil, authHeader)
	require.Equal(t, http.StatusBadRequest, second.Code)
}

func TestPollTarget_InvokesPoller(t *testing.T) {
	srv, s, poller := newTestServer(t)
	createUser(t, s, "op1", models.RoleOperator, "password1")
	loginRec := doJSON(t, srv.Router(), "POST", "/api/v1/auth/login", loginRequest{Username: "op1", Password: "password1"}, nil)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &tok))
	authHeader := map[string]string{"Authorization": "Bearer " + tok.AccessToken}

	require.NoError(t, s.Targets.Create(context.Background(), &models.Target{
		ID: "t1", Name: "sw1", IPAddress: "10.0.0.5", AddonID: "none", PollIntervalSeconds: 60, Enabled: true,
	}))

	rec := doJSON(t, srv.Router(), "POST", "/api/v1/targets/t1/poll", nil, authHeader)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, poller.called)
}
