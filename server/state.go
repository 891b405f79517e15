package server

import (
	"errors"
	"fmt"
	"math"
)

// Role 调用方身份：只有权威端（服务器 Tick 线程）可以修改复制状态
type Role int

const (
	RoleReplica Role = iota
	RoleAuthority
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "replica"
}

var (
	ErrNotAuthority  = errors.New("caller is not the authority")
	ErrInvalidAmount = errors.New("invalid amount")
)

func requireAuthority(role Role, op string) error {
	if role != RoleAuthority {
		return fmt.Errorf("%s: %w (role=%s)", op, ErrNotAuthority, role)
	}
	return nil
}

// Health 权威生命值，0 <= Current <= Max，归零时只触发一次销毁
type Health struct {
	Current *SyncVar[float64]
	max     float64
	dead    bool
}

func NewHealth(maxHealth float64) *Health {
	return &Health{Current: NewSyncVar(maxHealth), max: maxHealth}
}

func (h *Health) Max() float64 { return h.max }
func (h *Health) Dead() bool   { return h.dead }

// ApplyDamage 扣血并裁剪到 0；killed 仅在首次归零时为 true
func (h *Health) ApplyDamage(role Role, amount float64) (killed bool, err error) {
	if err := requireAuthority(role, "apply damage"); err != nil {
		return false, err
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false, fmt.Errorf("apply damage %v: %w", amount, ErrInvalidAmount)
	}
	if h.dead {
		return false, nil
	}
	cur := h.Current.Get() - amount
	if cur <= 0 {
		cur = 0
		h.dead = true
	}
	h.Current.Set(cur)
	return h.dead, nil
}

// Ratio 血条比例
func (h *Health) Ratio() float64 { return HealthRatio(h.Current.Get(), h.max) }

// Label 头顶名字文本，如 "NPC 60/100"
func (h *Health) Label() string { return HealthLabel(h.Current.Get(), h.max) }

func HealthRatio(cur, maxHealth float64) float64 {
	if maxHealth <= 0 {
		return 0
	}
	return cur / maxHealth
}

func HealthLabel(cur, maxHealth float64) string {
	return fmt.Sprintf("NPC %g/%g", cur, maxHealth)
}

// Door 门的开关状态。任何玩家都可以请求切换，不做归属校验（已知的授权缺口）
type Door struct {
	Open      *SyncVar[bool]
	openAngle float64
}

func NewDoor(openAngle float64) *Door {
	return &Door{Open: NewSyncVar(false), openAngle: openAngle}
}

// RequestToggle 来自任意玩家的切换请求，总是生效，返回新状态
func (d *Door) RequestToggle() bool {
	next := !d.Open.Get()
	d.Open.Set(next)
	return next
}

// Angle 门的可视旋转角度
func (d *Door) Angle() float64 { return DoorAngle(d.Open.Get(), d.openAngle) }

func DoorAngle(open bool, openAngle float64) float64 {
	if open {
		return openAngle
	}
	return 0
}

// WorldState 房间级聚合状态：警报与热度，目前没有玩法逻辑读取
type WorldState struct {
	AlarmActive *SyncVar[bool]
	Heat        *SyncVar[int]
}

func NewWorldState() *WorldState {
	return &WorldState{AlarmActive: NewSyncVar(false), Heat: NewSyncVar(0)}
}

func (w *WorldState) SetAlarm(role Role, active bool) error {
	if err := requireAuthority(role, "set alarm"); err != nil {
		return err
	}
	w.AlarmActive.Set(active)
	return nil
}

func (w *WorldState) SetHeat(role Role, heat int) error {
	if err := requireAuthority(role, "set heat"); err != nil {
		return err
	}
	if heat < 0 {
		return fmt.Errorf("set heat %d: %w", heat, ErrInvalidAmount)
	}
	w.Heat.Set(heat)
	return nil
}

func (w *WorldState) AddHeat(role Role, delta int) error {
	return w.SetHeat(role, w.Heat.Get()+delta)
}
