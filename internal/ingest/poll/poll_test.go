package poll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

type fakeResolver struct{ creds store.Credentials }

func (f fakeResolver) Resolve(ctx context.Context, ip, credType string) (store.Credentials, error) {
	return f.creds, nil
}

type recordingBus struct{ events []string }

func (b *recordingBus) Publish(eventType string, alert *models.Alert) {
	b.events = append(b.events, eventType)
}

func newTestDriver(t *testing.T) (*Driver, *store.Store, *addons.Registry) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := addons.New(s.Addons)
	engine := alertengine.New(s.Alerts, &recordingBus{})
	d := NewDriver(s.Targets, reg, engine, fakeResolver{})
	return d, s, reg
}

func TestEvaluateCondition(t *testing.T) {
	require.True(t, evaluateCondition("down", "equals", "down"))
	require.False(t, evaluateCondition("up", "equals", "down"))
	require.True(t, evaluateCondition("up", "not_equals", "down"))
	require.True(t, evaluateCondition("cpu at 95%", "contains", "95%"))
	require.True(t, evaluateCondition("95", "greater_than", 90))
	require.False(t, evaluateCondition("95", "greater_than", 99))
	require.True(t, evaluateCondition("10", "less_than", 50))
	require.False(t, evaluateCondition("x", "unknown_op", "y"))
}

func TestBuildURL(t *testing.T) {
	require.Equal(t, "http://10.0.0.5/api/status", buildURL("http://{ip}", "10.0.0.5", "/api/status"))
	require.Equal(t, "http://10.0.0.5/api", buildURL("http://{ip}/", "10.0.0.5", "api"))
	require.Equal(t, "http://10.0.0.5", buildURL("http://{ip}", "10.0.0.5", ""))
}

func TestPollAPI_ParsesSuccessResponseIntoAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"alert_type":"cpu_high","device_ip":"10.0.0.7"}`))
	}))
	defer srv.Close()

	d, _, _ := newTestDriver(t)
	addon := &models.Manifest{
		ID:     "api-device",
		Name:   "API Device",
		Method: models.MethodAPIPoll,
		APIPoll: &models.APIPollBlock{
			BaseURLTemplate: srv.URL,
			Endpoints:       []models.APIEndpoint{{Path: "/status", Method: "GET"}},
		},
		Parser: models.ParserBlock{
			Type: models.ParserJSON,
			FieldMappings: map[string]string{
				"alert_type": "$.alert_type",
				"device_ip":  "$.device_ip",
			},
		},
	}
	target := &models.Target{ID: "t1", IPAddress: "10.0.0.7", Enabled: true, PollIntervalSeconds: 60}

	d.pollAPI(context.Background(), target, addon)

	alerts, err := d.engine.List(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "cpu_high", alerts[0].AlertType)
}

func TestPollAPI_FailureSynthesizesAlertAndStopsIterating(t *testing.T) {
	d, _, _ := newTestDriver(t)
	addon := &models.Manifest{
		ID:     "unreachable-device",
		Name:   "Unreachable",
		Method: models.MethodAPIPoll,
		APIPoll: &models.APIPollBlock{
			BaseURLTemplate: "http://127.0.0.1:1", // nothing listens here
			Endpoints: []models.APIEndpoint{
				{Path: "/status", Method: "GET", AlertOnFailure: "device_unreachable"},
				{Path: "/other", Method: "GET", AlertOnFailure: "should_not_fire"},
			},
		},
		Parser: models.ParserBlock{Type: models.ParserJSON},
	}
	target := &models.Target{ID: "t2", IPAddress: "127.0.0.1", Enabled: true, PollIntervalSeconds: 60}

	d.pollAPI(context.Background(), target, addon)

	alerts, err := d.engine.List(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "device_unreachable", alerts[0].AlertType)
}

func TestRunOnce_NoDueTargetsIsNoop(t *testing.T) {
	d, _, _ := newTestDriver(t)
	require.NoError(t, d.RunOnce(context.Background()))
}
