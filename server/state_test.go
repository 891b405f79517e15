package server

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthApplyDamage(t *testing.T) {
	h := NewHealth(100)

	killed, err := h.ApplyDamage(RoleAuthority, 40)
	require.NoError(t, err)
	assert.False(t, killed)
	assert.Equal(t, 60.0, h.Current.Get())
	assert.InDelta(t, 0.6, h.Ratio(), 1e-9)
	assert.Equal(t, "NPC 60/100", h.Label())

	killed, err = h.ApplyDamage(RoleAuthority, 70)
	require.NoError(t, err)
	assert.True(t, killed)
	assert.Equal(t, 0.0, h.Current.Get())
	assert.True(t, h.Dead())

	killed, err = h.ApplyDamage(RoleAuthority, 10)
	require.NoError(t, err)
	assert.False(t, killed, "a dead NPC is killed only once")
	assert.Equal(t, 0.0, h.Current.Get())
}

func TestHealthExactKill(t *testing.T) {
	h := NewHealth(50)
	killed, err := h.ApplyDamage(RoleAuthority, 50)
	require.NoError(t, err)
	assert.True(t, killed)
}

func TestHealthRejectsReplicaAndBadAmounts(t *testing.T) {
	h := NewHealth(100)

	_, err := h.ApplyDamage(RoleReplica, 10)
	require.ErrorIs(t, err, ErrNotAuthority)
	assert.Equal(t, 100.0, h.Current.Get())

	for _, amount := range []float64{-5, math.NaN(), math.Inf(1)} {
		_, err := h.ApplyDamage(RoleAuthority, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %v", amount)
	}
	assert.Equal(t, 100.0, h.Current.Get())
}

func TestHealthZeroDamageDoesNotReplicate(t *testing.T) {
	h := NewHealth(100)
	_, err := h.ApplyDamage(RoleAuthority, 0)
	require.NoError(t, err)
	_, dirty := h.Current.TakeDirty()
	assert.False(t, dirty)
}

func TestHealthRatioZeroMax(t *testing.T) {
	assert.Equal(t, 0.0, HealthRatio(10, 0))
}

func TestDoorToggleAlwaysFlips(t *testing.T) {
	d := NewDoor(90)
	var seen []bool
	d.Open.Observe(HookFunc[bool](func(_, open bool) { seen = append(seen, open) }))

	assert.True(t, d.RequestToggle())
	assert.Equal(t, 90.0, d.Angle())
	assert.False(t, d.RequestToggle())
	assert.Equal(t, 0.0, d.Angle())
	assert.True(t, d.RequestToggle())

	assert.Equal(t, []bool{true, false, true}, seen)
}

func TestWorldStateRoleChecks(t *testing.T) {
	w := NewWorldState()

	require.ErrorIs(t, w.SetAlarm(RoleReplica, true), ErrNotAuthority)
	require.ErrorIs(t, w.SetHeat(RoleReplica, 2), ErrNotAuthority)
	assert.False(t, w.AlarmActive.Get())
	assert.Equal(t, 0, w.Heat.Get())

	require.NoError(t, w.SetAlarm(RoleAuthority, true))
	require.NoError(t, w.SetHeat(RoleAuthority, 2))
	require.NoError(t, w.AddHeat(RoleAuthority, 3))
	assert.True(t, w.AlarmActive.Get())
	assert.Equal(t, 5, w.Heat.Get())

	require.ErrorIs(t, w.SetHeat(RoleAuthority, -1), ErrInvalidAmount)
	require.ErrorIs(t, w.AddHeat(RoleAuthority, -10), ErrInvalidAmount)
	assert.Equal(t, 5, w.Heat.Get())
}
