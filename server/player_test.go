package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntegrateMovesAlongYaw(t *testing.T) {
	p := &Player{Move: Axis{Y: 1}}

	next := p.integrate(Transform{}, 5, 100, 0.1)
	assert.InDelta(t, 0, next.Position.X, 1e-9)
	assert.InDelta(t, 0.5, next.Position.Z, 1e-9)

	next = p.integrate(Transform{Yaw: 90}, 5, 100, 0.1)
	assert.InDelta(t, 0.5, next.Position.X, 1e-9)
	assert.InDelta(t, 0, next.Position.Z, 1e-9)
}

func TestIntegrateLookClampsPitch(t *testing.T) {
	p := &Player{Look: Axis{X: 1, Y: -1}}
	next := p.integrate(Transform{Yaw: 350, Pitch: 80}, 5, 100, 0.5)
	assert.InDelta(t, 40, next.Yaw, 1e-9)
	assert.Equal(t, 90.0, next.Pitch)
	assert.Equal(t, Vec3{}, next.Position)
}

func TestInputMessageToInput(t *testing.T) {
	in, ok := InputMessage{Type: "move", X: 3, Y: -2, Seq: 4}.ToInput("alice")
	assert.True(t, ok)
	assert.Equal(t, Input{PlayerID: "alice", Kind: InputMove, Axis: Axis{X: 1, Y: -1}, Seq: 4}, in)

	in, ok = InputMessage{Type: "hit", NetID: 3, Damage: 25}.ToInput("alice")
	assert.True(t, ok)
	assert.Equal(t, NetID(3), in.Target)
	assert.Equal(t, 25.0, in.Damage)

	_, ok = InputMessage{Type: "teleport"}.ToInput("alice")
	assert.False(t, ok)
}
