package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrapBouncesAtLaneEnds(t *testing.T) {
	tr := NewTrap(Vec3{X: 5}, 10, 1)
	tr.Launch(4)

	tr.step(2) // z = 8
	assert.InDelta(t, 8, tr.BallPosition().Z, 1e-9)
	tr.step(1) // z = 12 → 反弹到 8
	assert.InDelta(t, 8, tr.BallPosition().Z, 1e-9)
	tr.step(2.5) // z = -2 → 反弹到 2
	assert.InDelta(t, 2, tr.BallPosition().Z, 1e-9)
	assert.Equal(t, 5.0, tr.BallPosition().X)
	assert.Equal(t, tr.BallPosition(), tr.Ball.Get())
}

func TestTrapWithoutVelocityStaysPut(t *testing.T) {
	tr := NewTrap(Vec3{Z: 1}, 10, 1)
	tr.step(1)
	_, dirty := tr.Ball.TakeDirty()
	assert.False(t, dirty)
}

func TestTrapCollideFiresOnEnterOnly(t *testing.T) {
	tr := NewTrap(Vec3{}, 10, 1)
	near := map[NetID]Vec3{7: {X: 0.5}}

	hits := tr.collide(near)
	require.Len(t, hits, 1)
	assert.Equal(t, Vec3{X: 0.25}, hits[7])

	assert.Empty(t, tr.collide(near), "still touching")
	assert.Empty(t, tr.collide(map[NetID]Vec3{7: {X: 5}}), "moved away")
	assert.Len(t, tr.collide(near), 1, "entered again")
}

func TestTrapForgetsDepartedPlayers(t *testing.T) {
	tr := NewTrap(Vec3{}, 10, 1)
	tr.collide(map[NetID]Vec3{7: {}})
	tr.collide(map[NetID]Vec3{})
	assert.Len(t, tr.collide(map[NetID]Vec3{7: {}}), 1)
}
