package server

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ReplicaEntity 客户端侧的实体镜像，字段只通过 Apply 写入
type ReplicaEntity struct {
	ID        NetID
	Kind      EntityKind
	Owner     PlayerID
	MaxHealth float64
	OpenAngle float64

	Transform *SyncVar[Transform]
	Health    *SyncVar[float64]
	Open      *SyncVar[bool]
	Ball      *SyncVar[Vec3]
}

// HealthRatio 血条比例
func (e *ReplicaEntity) HealthRatio() float64 {
	if e.Health == nil {
		return 0
	}
	return HealthRatio(e.Health.Get(), e.MaxHealth)
}

// ReplicaObserver 表现层：在 OnSpawn 中给实体字段挂 Hook
type ReplicaObserver interface {
	OnSpawn(e *ReplicaEntity)
	OnDestroy(e *ReplicaEntity)
	OnRPC(call RPCCall)
}

// Replica 非权威端的状态镜像；单协程使用
type Replica struct {
	Self     NetID
	Tick     int64
	Alarm    *SyncVar[bool]
	Heat     *SyncVar[int]
	entities map[NetID]*ReplicaEntity
	observer ReplicaObserver
}

func NewReplica(observer ReplicaObserver) *Replica {
	return &Replica{
		Alarm:    NewSyncVar(false),
		Heat:     NewSyncVar(0),
		entities: make(map[NetID]*ReplicaEntity),
		observer: observer,
	}
}

func (r *Replica) Entity(id NetID) (*ReplicaEntity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Entities 按类型筛选，按 NetID 升序
func (r *Replica) Entities(kind EntityKind) []*ReplicaEntity {
	var out []*ReplicaEntity
	for _, e := range r.entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HandleFrame 解析并应用一帧服务端消息
func (r *Replica) HandleFrame(frame []byte) error {
	var msg ServerMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	r.Apply(msg)
	return nil
}

// Apply 应用一条服务端消息
func (r *Replica) Apply(msg ServerMessage) {
	if msg.Tick > r.Tick {
		r.Tick = msg.Tick
	}
	switch msg.Type {
	case MsgWelcome:
		r.Self = msg.Self
	case MsgSnapshot:
		seen := make(map[NetID]bool, len(msg.Entities))
		for _, st := range msg.Entities {
			seen[st.NetID] = true
			r.upsert(st)
		}
		for id, e := range r.entities {
			if !seen[id] {
				r.remove(e)
			}
		}
		r.applyWorld(msg.World)
	case MsgSpawn:
		for _, st := range msg.Entities {
			r.upsert(st)
		}
	case MsgState:
		for _, st := range msg.Entities {
			if e, ok := r.entities[st.NetID]; ok {
				applyFields(e, st)
			}
		}
		r.applyWorld(msg.World)
	case MsgDestroy:
		if e, ok := r.entities[msg.NetID]; ok {
			r.remove(e)
		}
	case MsgRPC:
		if msg.RPC != nil && r.observer != nil {
			r.observer.OnRPC(*msg.RPC)
		}
	}
}

func (r *Replica) upsert(st EntityState) {
	if e, ok := r.entities[st.NetID]; ok {
		applyFields(e, st)
		return
	}
	e := &ReplicaEntity{
		ID:        st.NetID,
		Kind:      st.Kind,
		Owner:     st.Owner,
		MaxHealth: st.MaxHealth,
		OpenAngle: st.OpenAngle,
		Transform: NewSyncVar(Transform{}),
	}
	if st.Transform != nil {
		e.Transform = NewSyncVar(*st.Transform)
	}
	if st.Health != nil {
		e.Health = NewSyncVar(*st.Health)
	}
	if st.Open != nil {
		e.Open = NewSyncVar(*st.Open)
	}
	if st.Ball != nil {
		e.Ball = NewSyncVar(*st.Ball)
	}
	r.entities[e.ID] = e
	if r.observer != nil {
		r.observer.OnSpawn(e)
	}
}

func (r *Replica) remove(e *ReplicaEntity) {
	delete(r.entities, e.ID)
	if r.observer != nil {
		r.observer.OnDestroy(e)
	}
}

func (r *Replica) applyWorld(w *WorldDelta) {
	if w == nil {
		return
	}
	if w.Alarm != nil {
		r.Alarm.Apply(*w.Alarm)
	}
	if w.Heat != nil {
		r.Heat.Apply(*w.Heat)
	}
}

func applyFields(e *ReplicaEntity, st EntityState) {
	if st.Transform != nil {
		e.Transform.Apply(*st.Transform)
	}
	if st.Health != nil && e.Health != nil {
		e.Health.Apply(*st.Health)
	}
	if st.Open != nil && e.Open != nil {
		e.Open.Apply(*st.Open)
	}
	if st.Ball != nil && e.Ball != nil {
		e.Ball.Apply(*st.Ball)
	}
}
