package trap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

func openTestMIBs(t *testing.T) *store.MIBRepo {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.MIB
}

func TestResolveOIDNames_NilMIBsReturnsNil(t *testing.T) {
	l := &Listener{}
	names := l.resolveOIDNames(context.Background(), &models.Manifest{SNMPTrap: &models.SNMPTrapBlock{}}, map[string]string{"1.2.3": "v"})
	require.Nil(t, names)
}

func TestResolveOIDNames_SkipsAlreadyMappedOIDs(t *testing.T) {
	mibs := openTestMIBs(t)
	require.NoError(t, mibs.Set(context.Background(), "1.3.6.1.2.1.1.5", "sysName"))
	require.NoError(t, mibs.Set(context.Background(), "1.3.6.1.2.1.1.6", "sysLocation"))

	l := &Listener{mibs: mibs}
	addon := &models.Manifest{
		SNMPTrap: &models.SNMPTrapBlock{
			VarbindMappings: map[string]string{"1.3.6.1.2.1.1.5": "hostname"},
		},
	}
	varbinds := map[string]string{
		"1.3.6.1.2.1.1.5": "router1",
		"1.3.6.1.2.1.1.6": "rack-3",
	}

	names := l.resolveOIDNames(context.Background(), addon, varbinds)
	require.Len(t, names, 1)
	require.Equal(t, "sysLocation", names["1.3.6.1.2.1.1.6"])
	require.NotContains(t, names, "1.3.6.1.2.1.1.5")
}

func TestResolveOIDNames_UnknownOIDLeftUnresolved(t *testing.T) {
	mibs := openTestMIBs(t)
	l := &Listener{mibs: mibs}
	addon := &models.Manifest{SNMPTrap: &models.SNMPTrapBlock{}}

	names := l.resolveOIDNames(context.Background(), addon, map[string]string{"9.9.9": "x"})
	require.Empty(t, names)
}
