package addons

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s.Addons), s
}

func mustInstall(t *testing.T, r *Registry, m *models.Manifest) {
	t.Helper()
	require.NoError(t, r.Install(context.Background(), m, true))
}

func TestFindByOID_LongestPrefixWins(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := &models.Manifest{ID: "a", Method: models.MethodSNMPTrap,
		SNMPTrap: &models.SNMPTrapBlock{EnterpriseOID: "1.3.6.1.4.1"}}
	b := &models.Manifest{ID: "b", Method: models.MethodSNMPTrap,
		SNMPTrap: &models.SNMPTrapBlock{EnterpriseOID: "1.3.6.1.4.1.9"}}

	mustInstall(t, r, a)
	mustInstall(t, r, b)

	got := r.FindByOID("1.3.6.1.4.1.9.9.41.2.0.1")
	require.NotNil(t, got)
	require.Equal(t, "b", got.ID)
}

func TestFindByOID_TieBreaksLexicographically(t *testing.T) {
	r, _ := newTestRegistry(t)

	z := &models.Manifest{ID: "zeta", Method: models.MethodSNMPTrap,
		SNMPTrap: &models.SNMPTrapBlock{EnterpriseOID: "1.3.6.1.4.1.9"}}
	a := &models.Manifest{ID: "alpha", Method: models.MethodSNMPTrap,
		SNMPTrap: &models.SNMPTrapBlock{EnterpriseOID: "1.3.6.1.4.1.9"}}

	mustInstall(t, r, z)
	mustInstall(t, r, a)

	got := r.FindByOID("1.3.6.1.4.1.9.1.1")
	require.NotNil(t, got)
	require.Equal(t, "alpha", got.ID)
}

func TestFindByWebhook_ExactMatchOnly(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := &models.Manifest{ID: "prtg", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/prtg"}}
	mustInstall(t, r, m)

	require.NotNil(t, r.FindByWebhook("/webhooks/prtg"))
	require.Nil(t, r.FindByWebhook("/webhooks/prtg/extra"))
	require.Nil(t, r.FindByWebhook("/webhooks/other"))
}

func TestInstall_DuplicateWebhookPathRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := &models.Manifest{ID: "a", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/shared"}}
	b := &models.Manifest{ID: "b", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/shared"}}

	mustInstall(t, r, a)

	err := r.Install(context.Background(), b, true)
	require.Error(t, err)
	var invalid *models.ErrInvalidManifest
	require.ErrorAs(t, err, &invalid)

	// previous snapshot remains active
	require.NotNil(t, r.FindByWebhook("/webhooks/shared"))
	require.Equal(t, "a", r.FindByWebhook("/webhooks/shared").ID)
}

func TestInstall_RejectedDuplicateDoesNotPoisonLaterInstalls(t *testing.T) {
	r, s := newTestRegistry(t)
	a := &models.Manifest{ID: "a", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/shared"}}
	b := &models.Manifest{ID: "b", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/shared"}}

	mustInstall(t, r, a)
	require.Error(t, r.Install(context.Background(), b, true))

	// the rejected manifest must never have reached the store, so it
	// can't keep tripping the duplicate check on unrelated installs
	all, err := s.Addons.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)

	c := &models.Manifest{ID: "c", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/other"}}
	require.NoError(t, r.Install(context.Background(), c, true))
	require.NotNil(t, r.FindByWebhook("/webhooks/other"))
}

func TestDisableRemovesFromLookups(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := &models.Manifest{ID: "prtg", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/prtg"}}
	mustInstall(t, r, m)
	require.NotNil(t, r.Get("prtg"))

	require.NoError(t, r.Disable(context.Background(), "prtg"))
	require.Nil(t, r.Get("prtg"))
	require.Nil(t, r.FindByWebhook("/webhooks/prtg"))
}

func TestUninstall(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := &models.Manifest{ID: "prtg", Method: models.MethodWebhook,
		Webhook: &models.WebhookBlock{EndpointPath: "/webhooks/prtg"}}
	mustInstall(t, r, m)

	require.NoError(t, r.Uninstall(context.Background(), "prtg"))
	require.Nil(t, r.Get("prtg"))
}
