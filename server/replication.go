package server

import (
	"encoding/json"
	"sort"
)

// 出站消息类型
const (
	MsgWelcome  = "welcome"
	MsgSnapshot = "snapshot"
	MsgSpawn    = "spawn"
	MsgState    = "state"
	MsgDestroy  = "destroy"
	MsgRPC      = "rpc"
)

// RPC 名称
const (
	RPCHeistStarted = "heist_started"
	RPCTrapHit      = "trap_hit"
)

// EntityState 实体的复制载荷；增量消息里只携带变化的字段
type EntityState struct {
	NetID     NetID      `json:"netId"`
	Kind      EntityKind `json:"kind,omitempty"`
	Owner     PlayerID   `json:"owner,omitempty"`
	Transform *Transform `json:"transform,omitempty"`
	Health    *float64   `json:"health,omitempty"`
	MaxHealth float64    `json:"maxHealth,omitempty"`
	Open      *bool      `json:"open,omitempty"`
	OpenAngle float64    `json:"openAngle,omitempty"`
	Ball      *Vec3      `json:"ball,omitempty"`
}

// WorldDelta 房间聚合状态
type WorldDelta struct {
	Alarm *bool `json:"alarm,omitempty"`
	Heat  *int  `json:"heat,omitempty"`
}

// RPCCall 广播给所有客户端的远程调用
type RPCCall struct {
	Name  string `json:"name"`
	NetID NetID  `json:"netId,omitempty"`
	Point *Vec3  `json:"point,omitempty"`
}

// ServerMessage 出站 JSON 结构
type ServerMessage struct {
	Type     string        `json:"type"`
	Tick     int64         `json:"tick"`
	Self     NetID         `json:"self,omitempty"`
	NetID    NetID         `json:"netId,omitempty"`
	Entities []EntityState `json:"entities,omitempty"`
	World    *WorldDelta   `json:"world,omitempty"`
	RPC      *RPCCall      `json:"rpc,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// fullState 实体完整状态（spawn / snapshot 使用）
func fullState(e *Entity) EntityState {
	st := EntityState{
		NetID:     e.ID,
		Kind:      e.Kind,
		Transform: ptr(e.Transform.Get()),
	}
	if e.Player != nil {
		st.Owner = e.Player.ID
	}
	if e.Health != nil {
		st.Health = ptr(e.Health.Current.Get())
		st.MaxHealth = e.Health.Max()
	}
	if e.Door != nil {
		st.Open = ptr(e.Door.Open.Get())
		st.OpenAngle = e.Door.openAngle
	}
	if e.Trap != nil {
		st.Ball = ptr(e.Trap.Ball.Get())
	}
	return st
}

// dirtyState 取走实体的 dirty 字段，没有变化时返回 false
func dirtyState(e *Entity) (EntityState, bool) {
	st := EntityState{NetID: e.ID}
	changed := false
	if t, ok := e.Transform.TakeDirty(); ok {
		st.Transform = ptr(t)
		changed = true
	}
	if e.Health != nil {
		if v, ok := e.Health.Current.TakeDirty(); ok {
			st.Health = ptr(v)
			changed = true
		}
	}
	if e.Door != nil {
		if v, ok := e.Door.Open.TakeDirty(); ok {
			st.Open = ptr(v)
			changed = true
		}
	}
	if e.Trap != nil {
		if v, ok := e.Trap.Ball.TakeDirty(); ok {
			st.Ball = ptr(v)
			changed = true
		}
	}
	return st, changed
}

func worldDirty(w *WorldState) *WorldDelta {
	var d WorldDelta
	changed := false
	if v, ok := w.AlarmActive.TakeDirty(); ok {
		d.Alarm = ptr(v)
		changed = true
	}
	if v, ok := w.Heat.TakeDirty(); ok {
		d.Heat = ptr(v)
		changed = true
	}
	if !changed {
		return nil
	}
	return &d
}

func (r *Room) sortedIDs() []NetID {
	ids := make([]NetID, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot 当前全部实体与聚合状态（新观察者入场时发送）
func (r *Room) Snapshot() ServerMessage {
	ids := r.sortedIDs()
	ents := make([]EntityState, 0, len(ids))
	for _, id := range ids {
		ents = append(ents, fullState(r.entities[id]))
	}
	return ServerMessage{
		Type:     MsgSnapshot,
		Tick:     r.tickSeq,
		Entities: ents,
		World: &WorldDelta{
			Alarm: ptr(r.world.AlarmActive.Get()),
			Heat:  ptr(r.world.Heat.Get()),
		},
	}
}

func (r *Room) queue(msg ServerMessage) {
	msg.Tick = r.tickSeq
	r.outbox = append(r.outbox, msg)
}

// BroadcastDelta 复制阶段：先按顺序发出本帧的 spawn/destroy/rpc，再发 dirty 字段增量；
// 最后给本帧新加入的玩家发送 welcome + 全量快照
func (r *Room) BroadcastDelta() {
	var deltas []EntityState
	for _, id := range r.sortedIDs() {
		if st, ok := dirtyState(r.entities[id]); ok {
			deltas = append(deltas, st)
		}
	}
	wd := worldDirty(r.world)
	if len(deltas) > 0 || wd != nil {
		r.queue(ServerMessage{Type: MsgState, Entities: deltas, World: wd})
	}

	if len(r.outbox) > 0 {
		frames := make([][]byte, 0, len(r.outbox))
		for _, msg := range r.outbox {
			b, err := json.Marshal(msg)
			if err != nil {
				r.log.Errorw("marshal frame failed", "room", r.ID, "type", msg.Type, "err", err)
				continue
			}
			frames = append(frames, b)
		}
		for _, p := range r.players {
			if p.Conn == nil || r.isPending(p) {
				continue
			}
			for _, b := range frames {
				p.Conn.Enqueue(b)
			}
		}
		r.outbox = r.outbox[:0]
	}

	for _, p := range r.pending {
		if _, ok := r.players[p.ID]; !ok || p.Conn == nil {
			continue
		}
		welcome, _ := json.Marshal(ServerMessage{Type: MsgWelcome, Tick: r.tickSeq, Self: p.NetID})
		snap, err := json.Marshal(r.Snapshot())
		if err != nil {
			r.log.Errorw("marshal snapshot failed", "room", r.ID, "err", err)
			continue
		}
		p.Conn.Enqueue(welcome)
		p.Conn.Enqueue(snap)
	}
	r.pending = r.pending[:0]
}

func (r *Room) isPending(p *Player) bool {
	for _, q := range r.pending {
		if q == p {
			return true
		}
	}
	return false
}
