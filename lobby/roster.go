package lobby

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultNameAttempts = 5
	DefaultNameDelay    = 500 * time.Millisecond
)

var errNamePending = errors.New("persona name not cached yet")

// Handle 名单中一个成员的表现句柄
type Handle struct {
	ID     MemberID
	Name   string
	Avatar *image.RGBA

	disposed atomic.Bool
}

// Disposed 成员已离开，异步解析结果不应再写入
func (h *Handle) Disposed() bool { return h.disposed.Load() }

// Presenter 表现层（只写）
type Presenter interface {
	Show(h *Handle)
	Update(h *Handle)
	Remove(h *Handle)
}

// Resolution 异步解析的结果，回到会话循环后才写入句柄
type Resolution struct {
	handle *Handle
	name   string
	avatar *image.RGBA
}

// RosterSync 维护 MemberID → Handle 映射。
// 除 resolve 协程外，所有方法只在会话循环中调用
type RosterSync struct {
	svc       Service
	presenter Presenter
	log       *zap.SugaredLogger

	attempts int
	delay    time.Duration

	handles map[MemberID]*Handle
	results chan Resolution
}

func NewRosterSync(svc Service, presenter Presenter, log *zap.SugaredLogger) *RosterSync {
	return &RosterSync{
		svc:       svc,
		presenter: presenter,
		log:       log,
		attempts:  DefaultNameAttempts,
		delay:     DefaultNameDelay,
		handles:   make(map[MemberID]*Handle),
		results:   make(chan Resolution, subscriberBuffer),
	}
}

// SetRetry 名字解析的重试次数与间隔
func (r *RosterSync) SetRetry(attempts int, delay time.Duration) {
	r.attempts = attempts
	r.delay = delay
}

// Handle 查询成员句柄
func (r *RosterSync) Handle(id MemberID) (*Handle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

// Len 当前名单人数
func (r *RosterSync) Len() int { return len(r.handles) }

// Results 解析结果通道，由会话循环读取后交给 Apply
func (r *RosterSync) Results() <-chan Resolution { return r.results }

// Reset 进入新大厅：清空并按成员列表重建
func (r *RosterSync) Reset(ctx context.Context, members []MemberID) {
	r.Clear()
	for _, m := range members {
		r.Add(ctx, m)
	}
}

// Add 成员加入：创建句柄并异步解析名字与头像；已存在时忽略
func (r *RosterSync) Add(ctx context.Context, id MemberID) {
	if _, ok := r.handles[id]; ok {
		return
	}
	h := &Handle{ID: id, Name: PlaceholderName}
	r.handles[id] = h
	r.presenter.Show(h)
	go r.resolve(ctx, h)
}

// Remove 成员离开：没有对应句柄时不做任何事
func (r *RosterSync) Remove(id MemberID) {
	h, ok := r.handles[id]
	if !ok {
		return
	}
	h.disposed.Store(true)
	delete(r.handles, id)
	r.presenter.Remove(h)
}

// Clear 移除全部句柄
func (r *RosterSync) Clear() {
	for id := range r.handles {
		r.Remove(id)
	}
}

// Apply 在会话循环中写回解析结果；句柄已被销毁或替换时丢弃
func (r *RosterSync) Apply(res Resolution) bool {
	h := res.handle
	if h.Disposed() || r.handles[h.ID] != h {
		r.log.Debugw("dropping stale roster result", "member", h.ID)
		return false
	}
	h.Name = res.name
	if res.avatar != nil {
		h.Avatar = res.avatar
	}
	r.presenter.Update(h)
	return true
}

// resolve 名字可能先返回占位值，按固定间隔重试；用尽次数后保留占位名，不上报
func (r *RosterSync) resolve(ctx context.Context, h *Handle) {
	name := PlaceholderName
	op := func() error {
		if h.Disposed() {
			return backoff.Permanent(context.Canceled)
		}
		n, err := r.svc.PersonaName(ctx, h.ID)
		if err != nil {
			return err
		}
		name = n
		if n == "" || n == PlaceholderName {
			return errNamePending
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), uint64(max(r.attempts, 0)))
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil && !errors.Is(err, errNamePending) {
		if h.Disposed() || ctx.Err() != nil {
			return
		}
		r.log.Debugw("persona name lookup failed", "member", h.ID, "err", err)
	}
	if name == "" {
		name = PlaceholderName
	}

	if h.Disposed() {
		return
	}
	var img *image.RGBA
	if a, err := r.svc.Avatar(ctx, h.ID); err != nil {
		r.log.Debugw("avatar lookup failed", "member", h.ID, "err", err)
	} else if a != nil {
		if img, err = a.ToImage(); err != nil {
			r.log.Warnw("bad avatar", "member", h.ID, "err", err)
		}
	}

	select {
	case r.results <- Resolution{handle: h, name: name, avatar: img}:
	case <-ctx.Done():
	}
}
