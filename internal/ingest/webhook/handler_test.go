package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *addons.Registry) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := addons.New(s.Addons)
	engine := alertengine.New(s.Alerts, noopBus{})

	manifest := &models.Manifest{
		ID:     "prtg",
		Name:   "PRTG",
		Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{
			EndpointPath: "prtg/main",
		},
		Parser: models.ParserBlock{
			Type: models.ParserJSON,
			FieldMappings: map[string]string{
				"alert_type": "$.sensor",
				"device_ip":  "$.device",
			},
		},
	}
	require.NoError(t, reg.Install(context.Background(), manifest, true))

	return NewHandler(reg, engine, 5), reg
}

type noopBus struct{}

func (noopBus) Publish(eventType string, alert *models.Alert) {}

func TestServeHTTP_UnknownPathReturns404(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/unknown", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTP_JSONBodyAccepted(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"sensor":"cpu_high","device":"10.0.0.9"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/prtg/main", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"accepted":true`)
}

func TestServeHTTP_FormEncodedBodyAccepted(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/prtg/main", strings.NewReader("sensor=cpu_high&device=10.0.0.9"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeHTTP_MalformedJSONReturns422(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/prtg/main", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServeHTTP_WrongMethodRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/webhooks/prtg/main", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTP_OverCapacityReturns503(t *testing.T) {
	h, _ := newTestHandler(t)
	// fill the semaphore manually to simulate saturation
	for i := 0; i < cap(h.sem); i++ {
		h.sem <- struct{}{}
	}
	defer func() {
		for i := 0; i < cap(h.sem); i++ {
			<-h.sem
		}
	}()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/prtg/main", strings.NewReader(`{"sensor":"x","device":"1.2.3.4"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFindAddon_GlobWildcardPath(t *testing.T) {
	h, reg := newTestHandler(t)
	wildcardManifest := &models.Manifest{
		ID:     "prtg-tenants",
		Name:   "PRTG multi-tenant",
		Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{
			EndpointPath: "prtg/tenant-*",
		},
		Parser: models.ParserBlock{Type: models.ParserJSON},
	}
	require.NoError(t, reg.Install(context.Background(), wildcardManifest, true))

	found := h.findAddon("prtg/tenant-42")
	require.NotNil(t, found)
	require.Equal(t, "prtg-tenants", found.ID)
}
