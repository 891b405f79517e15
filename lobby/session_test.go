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

const testHostAddr = "ws://127.0.0.1:8080/ws?room=room-1"

type fakeConnector struct {
	mu      sync.Mutex
	active  bool
	hosts   []string
	clients []string
}

func (c *fakeConnector) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeConnector) StartHost(_ context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.hosts = append(c.hosts, addr)
	return nil
}

func (c *fakeConnector) StartClient(_ context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.clients = append(c.clients, addr)
	return nil
}

func (c *fakeConnector) started() (hosts, clients []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.hosts...), append([]string(nil), c.clients...)
}

type testParticipant struct {
	client  *LocalClient
	conn    *fakeConnector
	session *Session
	done    chan error
}

func startParticipant(t *testing.T, hub *Hub, id MemberID) *testParticipant {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar().With("member", id)
	client := hub.Connect(id)
	roster := NewRosterSync(client, &recordingPresenter{}, log)
	roster.SetRetry(DefaultNameAttempts, time.Millisecond)
	conn := &fakeConnector{}
	p := &testParticipant{
		client:  client,
		conn:    conn,
		session: NewSession(client, roster, conn, testHostAddr, 4, log),
		done:    make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { p.done <- p.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-p.done
		client.Close()
	})
	return p
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, 5*time.Millisecond,
		"want state %s, have %s", want, s.State())
}

func TestSessionOwnerStartsGame(t *testing.T) {
	hub := newTestHub(t, 4)
	alice := startParticipant(t, hub, "alice")
	assert.Equal(t, StateNoLobby, alice.session.State())

	require.NoError(t, alice.session.CreateLobby(t.Context()))
	waitState(t, alice.session, StateLobbyActive)

	require.NoError(t, alice.session.StartGame(t.Context()))
	assert.Equal(t, StateHostAddressPublished, alice.session.State())
	hosts, clients := alice.conn.started()
	assert.Equal(t, []string{testHostAddr}, hosts)
	assert.Empty(t, clients)

	snap, ok := alice.session.Lobby()
	require.True(t, ok)
	l, _ := hub.Lobby(snap.ID)
	assert.Equal(t, testHostAddr, l.Data[HostAddressKey])

	// 自己发布地址引起的 data_changed 不会让房主再以客户端连接
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHostAddressPublished, alice.session.State())
}

func TestSessionMemberConnectsWhenAddressPublished(t *testing.T) {
	hub := newTestHub(t, 4)
	alice := startParticipant(t, hub, "alice")
	bob := startParticipant(t, hub, "bob")

	require.NoError(t, alice.session.CreateLobby(t.Context()))
	waitState(t, alice.session, StateLobbyActive)
	snap, _ := alice.session.Lobby()

	require.NoError(t, bob.session.Join(t.Context(), snap.ID))
	waitState(t, bob.session, StateLobbyActive)

	require.NoError(t, alice.session.StartGame(t.Context()))
	waitState(t, bob.session, StateClientConnecting)
	_, clients := bob.conn.started()
	assert.Equal(t, []string{testHostAddr}, clients)
}

func TestSessionLateJoinerConnectsImmediately(t *testing.T) {
	hub := newTestHub(t, 4)
	alice := startParticipant(t, hub, "alice")
	require.NoError(t, alice.session.CreateLobby(t.Context()))
	waitState(t, alice.session, StateLobbyActive)
	require.NoError(t, alice.session.StartGame(t.Context()))
	snap, _ := alice.session.Lobby()

	carol := startParticipant(t, hub, "carol")
	require.NoError(t, carol.session.Join(t.Context(), snap.ID))
	waitState(t, carol.session, StateClientConnecting)
}

func TestSessionNonOwnerCannotStart(t *testing.T) {
	hub := newTestHub(t, 4)
	alice := startParticipant(t, hub, "alice")
	bob := startParticipant(t, hub, "bob")

	require.ErrorIs(t, bob.session.StartGame(t.Context()), ErrNoLobby)

	require.NoError(t, alice.session.CreateLobby(t.Context()))
	waitState(t, alice.session, StateLobbyActive)
	snap, _ := alice.session.Lobby()
	require.NoError(t, bob.session.Join(t.Context(), snap.ID))
	waitState(t, bob.session, StateLobbyActive)

	require.ErrorIs(t, bob.session.StartGame(t.Context()), ErrNotOwner)
	l, _ := hub.Lobby(snap.ID)
	assert.Empty(t, l.Data[HostAddressKey])
	hosts, clients := bob.conn.started()
	assert.Empty(t, hosts)
	assert.Empty(t, clients)
}

func TestSessionJoinFailureRevertsState(t *testing.T) {
	hub := newTestHub(t, 4)
	bob := startParticipant(t, hub, "bob")
	require.ErrorIs(t, bob.session.Join(t.Context(), "missing"), ErrNoLobby)
	assert.Equal(t, StateNoLobby, bob.session.State())
}

func TestSessionAcceptsInvite(t *testing.T) {
	hub := newTestHub(t, 4)
	alice := startParticipant(t, hub, "alice")
	carol := startParticipant(t, hub, "carol")

	require.NoError(t, alice.session.CreateLobby(t.Context()))
	waitState(t, alice.session, StateLobbyActive)
	snap, _ := alice.session.Lobby()

	require.NoError(t, hub.Invite("alice", "carol", snap.ID))
	waitState(t, carol.session, StateLobbyActive)
	got, ok := carol.session.Lobby()
	require.True(t, ok)
	assert.Equal(t, snap.ID, got.ID)
}

func TestSessionRosterTracksMembers(t *testing.T) {
	hub := newTestHub(t, 4)
	hub.SetProfile("bob", Profile{Name: "Bob", Status: StatusOnline})
	alice := startParticipant(t, hub, "alice")
	bob := startParticipant(t, hub, "bob")

	require.NoError(t, alice.session.CreateLobby(t.Context()))
	waitState(t, alice.session, StateLobbyActive)
	snap, _ := alice.session.Lobby()
	require.NoError(t, bob.session.Join(t.Context(), snap.ID))

	require.Eventually(t, func() bool {
		name, ok := alice.session.MemberName("bob")
		return ok && name == "Bob"
	}, 2*time.Second, 5*time.Millisecond)
	name, ok := alice.session.MemberName("alice")
	require.True(t, ok)
	assert.Equal(t, PlaceholderName, name, "alice never published a profile")

	require.NoError(t, bob.session.Leave(t.Context()))
	assert.Equal(t, StateLobbyTorndown, bob.session.State())
	require.Eventually(t, func() bool {
		_, ok := alice.session.MemberName("bob")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionRunEndsWhenEventStreamCloses(t *testing.T) {
	hub := newTestHub(t, 4)
	client := hub.Connect("dave")
	s := NewSession(client, NewRosterSync(client, &recordingPresenter{}, zaptest.NewLogger(t).Sugar()),
		&fakeConnector{}, testHostAddr, 4, zaptest.NewLogger(t).Sugar())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	client.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
