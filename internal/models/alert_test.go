package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableAndScopedToInputs(t *testing.T) {
	a := Fingerprint("prtg", "cpu_high", "10.0.0.5")
	b := Fingerprint("prtg", "cpu_high", "10.0.0.5")
	require.Equal(t, a, b)
	require.Len(t, a, 32)

	require.NotEqual(t, a, Fingerprint("prtg", "cpu_high", "10.0.0.6"))
	require.NotEqual(t, a, Fingerprint("prtg", "mem_high", "10.0.0.5"))
	require.NotEqual(t, a, Fingerprint("zabbix", "cpu_high", "10.0.0.5"))
}

func TestAlert_Clone_DeepCopiesMutableFields(t *testing.T) {
	resolvedAt := time.Now()
	a := &Alert{
		ID:         "alert-1",
		ResolvedAt: &resolvedAt,
		RawData:    []byte(`{"k":"v"}`),
	}
	clone := a.Clone()

	*clone.ResolvedAt = resolvedAt.Add(time.Hour)
	clone.RawData[0] = 'X'

	require.Equal(t, resolvedAt, *a.ResolvedAt)
	require.Equal(t, byte('{'), a.RawData[0])
}

func TestAlert_Clone_Nil(t *testing.T) {
	var a *Alert
	require.Nil(t, a.Clone())
}

func TestTarget_IsDue(t *testing.T) {
	now := time.Now()

	disabled := &Target{Enabled: false}
	require.False(t, disabled.IsDue(now))

	neverPolled := &Target{Enabled: true}
	require.True(t, neverPolled.IsDue(now))

	recent := &Target{Enabled: true, PollIntervalSeconds: 60, LastPollAt: timePtr(now.Add(-10 * time.Second))}
	require.False(t, recent.IsDue(now))

	stale := &Target{Enabled: true, PollIntervalSeconds: 60, LastPollAt: timePtr(now.Add(-90 * time.Second))}
	require.True(t, stale.IsDue(now))
}

func TestRole_Satisfies(t *testing.T) {
	require.True(t, RoleAdmin.Satisfies(RoleViewer))
	require.True(t, RoleAdmin.Satisfies(RoleAdmin))
	require.False(t, RoleViewer.Satisfies(RoleOperator))
	require.True(t, RoleOperator.Satisfies(RoleService))
}

func TestValidRole(t *testing.T) {
	require.True(t, ValidRole(RoleAdmin))
	require.True(t, ValidRole(RoleViewer))
	require.False(t, ValidRole(Role("superuser")))
}

func timePtr(t time.Time) *time.Time { return &t }
