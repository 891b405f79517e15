package server

import "math"

// NetID 房间内已生成实体的网络标识（单调递增，从 1 开始）
type NetID uint32

// EntityKind 实体类型
type EntityKind string

const (
	KindMap    EntityKind = "map"
	KindPlayer EntityKind = "player"
	KindNPC    EntityKind = "npc"
	KindDoor   EntityKind = "door"
	KindTrap   EntityKind = "trap"
)

// Vec3 世界坐标（Y 轴朝上）
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// Transform 位置 + 朝向（角度制：Yaw 绕 Y 轴，Pitch 为视角俯仰）
type Transform struct {
	Position Vec3    `json:"position" yaml:"position"`
	Yaw      float64 `json:"yaw" yaml:"yaw"`
	Pitch    float64 `json:"pitch,omitempty" yaml:"pitch"`
}

// Entity 房间内一个已生成的网络对象；按类型只填充对应的状态
type Entity struct {
	ID        NetID
	Kind      EntityKind
	Transform *SyncVar[Transform]

	Player *Player
	Health *Health
	Door   *Door
	Trap   *Trap
}

func newEntity(id NetID, kind EntityKind, t Transform) *Entity {
	return &Entity{ID: id, Kind: kind, Transform: NewSyncVar(t)}
}
