package server

// Hook 状态变化观察者：旧值 → 新值
type Hook[T any] interface {
	OnChange(oldValue, newValue T)
}

// HookFunc 便于以函数注册 Hook
type HookFunc[T any] func(oldValue, newValue T)

func (f HookFunc[T]) OnChange(oldValue, newValue T) { f(oldValue, newValue) }

// SyncVar 可复制字段：权威端 Set 后标记 dirty，由复制阶段取走并广播；
// 副本端通过 Apply 写入，只触发 Hook
type SyncVar[T comparable] struct {
	value T
	dirty bool
	hooks []Hook[T]
}

func NewSyncVar[T comparable](initial T) *SyncVar[T] {
	return &SyncVar[T]{value: initial}
}

func (v *SyncVar[T]) Get() T { return v.value }

// Observe 注册变化回调
func (v *SyncVar[T]) Observe(h Hook[T]) {
	v.hooks = append(v.hooks, h)
}

// Set 权威端写入；值未变化时不触发任何东西
func (v *SyncVar[T]) Set(newValue T) bool {
	if !v.assign(newValue) {
		return false
	}
	v.dirty = true
	return true
}

// Apply 副本端写入来自权威端的值
func (v *SyncVar[T]) Apply(newValue T) bool {
	return v.assign(newValue)
}

// TakeDirty 取走 dirty 标记，返回当前值与是否需要复制
func (v *SyncVar[T]) TakeDirty() (T, bool) {
	d := v.dirty
	v.dirty = false
	return v.value, d
}

func (v *SyncVar[T]) assign(newValue T) bool {
	if v.value == newValue {
		return false
	}
	old := v.value
	v.value = newValue
	for _, h := range v.hooks {
		h.OnChange(old, newValue)
	}
	return true
}
