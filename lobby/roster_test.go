package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeService 只实现名单需要的资料查询；前 pending 次返回占位名
type fakeService struct {
	mu      sync.Mutex
	names   map[MemberID]string
	pending int
	calls   map[MemberID]int
	avatars map[MemberID]*Avatar
}

func newFakeService() *fakeService {
	return &fakeService{
		names:   make(map[MemberID]string),
		calls:   make(map[MemberID]int),
		avatars: make(map[MemberID]*Avatar),
	}
}

func (f *fakeService) Self() MemberID { return "self" }
func (f *fakeService) CreateLobby(context.Context, int) (Snapshot, error) {
	return Snapshot{}, ErrUnavailable
}
func (f *fakeService) JoinLobby(context.Context, LobbyID) (Snapshot, error) {
	return Snapshot{}, ErrUnavailable
}
func (f *fakeService) LeaveLobby(context.Context, LobbyID) error               { return nil }
func (f *fakeService) SetData(context.Context, LobbyID, string, string) error { return nil }
func (f *fakeService) Events() <-chan Event                                    { return nil }

func (f *fakeService) PersonaName(_ context.Context, id MemberID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.calls[id] <= f.pending {
		return PlaceholderName, nil
	}
	if n, ok := f.names[id]; ok {
		return n, nil
	}
	return PlaceholderName, nil
}

func (f *fakeService) Avatar(_ context.Context, id MemberID) (*Avatar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.avatars[id], nil
}

func (f *fakeService) callCount(id MemberID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type recordingPresenter struct {
	shown, updated, removed []MemberID
}

func (p *recordingPresenter) Show(h *Handle)   { p.shown = append(p.shown, h.ID) }
func (p *recordingPresenter) Update(h *Handle) { p.updated = append(p.updated, h.ID) }
func (p *recordingPresenter) Remove(h *Handle) { p.removed = append(p.removed, h.ID) }

func newTestRoster(t *testing.T, svc Service) (*RosterSync, *recordingPresenter) {
	t.Helper()
	p := &recordingPresenter{}
	r := NewRosterSync(svc, p, zaptest.NewLogger(t).Sugar())
	r.SetRetry(DefaultNameAttempts, time.Millisecond)
	return r, p
}

func nextResult(t *testing.T, r *RosterSync) Resolution {
	t.Helper()
	select {
	case res := <-r.Results():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for roster result")
		return Resolution{}
	}
}

func TestRosterResolvesNameAfterRetries(t *testing.T) {
	svc := newFakeService()
	svc.names["bob"] = "Bob"
	svc.pending = 2
	r, p := newTestRoster(t, svc)

	r.Add(t.Context(), "bob")
	h, ok := r.Handle("bob")
	require.True(t, ok)
	assert.Equal(t, PlaceholderName, h.Name)
	assert.Equal(t, []MemberID{"bob"}, p.shown)

	require.True(t, r.Apply(nextResult(t, r)))
	assert.Equal(t, "Bob", h.Name)
	assert.Equal(t, 3, svc.callCount("bob"))
	assert.Equal(t, []MemberID{"bob"}, p.updated)
}

func TestRosterKeepsPlaceholderWhenRetriesRunOut(t *testing.T) {
	svc := newFakeService()
	r, _ := newTestRoster(t, svc)

	r.Add(t.Context(), "ghost")
	require.True(t, r.Apply(nextResult(t, r)))
	h, _ := r.Handle("ghost")
	assert.Equal(t, PlaceholderName, h.Name)
	assert.Equal(t, 1+DefaultNameAttempts, svc.callCount("ghost"))
}

func TestRosterDropsResultForDepartedMember(t *testing.T) {
	svc := newFakeService()
	svc.names["bob"] = "Bob"
	r, p := newTestRoster(t, svc)

	r.Add(t.Context(), "bob")
	res := nextResult(t, r)
	old, _ := r.Handle("bob")
	r.Remove("bob")
	assert.True(t, old.Disposed())

	assert.False(t, r.Apply(res))
	assert.Equal(t, PlaceholderName, old.Name)
	assert.Empty(t, p.updated)
}

func TestRosterDropsResultForReplacedHandle(t *testing.T) {
	svc := newFakeService()
	svc.names["bob"] = "Bob"
	r, _ := newTestRoster(t, svc)

	r.Add(t.Context(), "bob")
	stale := nextResult(t, r)
	r.Remove("bob")
	r.Add(t.Context(), "bob")
	fresh := nextResult(t, r)

	assert.False(t, r.Apply(stale))
	assert.True(t, r.Apply(fresh))
	h, _ := r.Handle("bob")
	assert.Equal(t, "Bob", h.Name)
}

func TestRosterRemoveUnknownIsNoop(t *testing.T) {
	r, p := newTestRoster(t, newFakeService())
	assert.NotPanics(t, func() { r.Remove("nobody") })
	assert.Empty(t, p.removed)
	assert.Equal(t, 0, r.Len())
}

func TestRosterAddDuplicateIgnored(t *testing.T) {
	r, p := newTestRoster(t, newFakeService())
	r.SetRetry(0, time.Millisecond)
	r.Add(t.Context(), "bob")
	r.Add(t.Context(), "bob")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []MemberID{"bob"}, p.shown)
}

func TestRosterResolvesAvatar(t *testing.T) {
	svc := newFakeService()
	svc.names["bob"] = "Bob"
	svc.avatars["bob"] = &Avatar{Width: 1, Height: 2, Pix: []byte{
		10, 0, 0, 255,
		20, 0, 0, 255,
	}}
	r, _ := newTestRoster(t, svc)

	r.Add(t.Context(), "bob")
	require.True(t, r.Apply(nextResult(t, r)))
	h, _ := r.Handle("bob")
	require.NotNil(t, h.Avatar)
	assert.Equal(t, uint8(20), h.Avatar.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(10), h.Avatar.RGBAAt(0, 1).R)
}

func TestRosterResetRebuilds(t *testing.T) {
	r, p := newTestRoster(t, newFakeService())
	r.SetRetry(0, time.Millisecond)
	r.Add(t.Context(), "old")
	r.Reset(t.Context(), []MemberID{"a", "b"})

	_, ok := r.Handle("old")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []MemberID{"old"}, p.removed)
}

func TestRosterResolveStopsOnCancel(t *testing.T) {
	svc := newFakeService()
	r, _ := newTestRoster(t, svc)
	r.SetRetry(DefaultNameAttempts, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	r.Add(ctx, "ghost")
	require.Eventually(t, func() bool { return svc.callCount("ghost") == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-r.Results():
		t.Fatal("no result after cancellation")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, svc.callCount("ghost"))
}
