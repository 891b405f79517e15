package lobby

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDirectory struct {
	friends   []Persona
	listErr   error
	avatars   map[MemberID]*Avatar
	avatarErr map[MemberID]error
}

func (d *fakeDirectory) Friends(context.Context) ([]Persona, error) {
	return d.friends, d.listErr
}

func (d *fakeDirectory) Avatar(_ context.Context, id MemberID) (*Avatar, error) {
	if err := d.avatarErr[id]; err != nil {
		return nil, err
	}
	return d.avatars[id], nil
}

type recordingFriends struct {
	clears int
	shown  []FriendEntry
}

func (p *recordingFriends) ClearFriends() {
	p.clears++
	p.shown = nil
}

func (p *recordingFriends) ShowFriend(e FriendEntry) { p.shown = append(p.shown, e) }

func TestFriendsPanelDimsOfflineFriends(t *testing.T) {
	// 1x2，自下而上：底行红，顶行白
	pix := []byte{255, 0, 0, 255, 255, 255, 255, 255}
	dir := &fakeDirectory{
		friends: []Persona{
			{ID: "bob", Name: "Bob", Status: StatusOnline},
			{ID: "carol", Name: "Carol", Status: StatusOffline},
		},
		avatars: map[MemberID]*Avatar{
			"bob":   {Width: 1, Height: 2, Pix: append([]byte(nil), pix...)},
			"carol": {Width: 1, Height: 2, Pix: append([]byte(nil), pix...)},
		},
	}
	p := &recordingFriends{}
	panel := NewFriendsPanel(dir, p, zaptest.NewLogger(t).Sugar())

	entries, err := panel.Refresh(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entries, p.shown)
	assert.Equal(t, 1, p.clears)

	bob := entries[0]
	assert.False(t, bob.Dimmed)
	assert.Equal(t, "Bob\nOnline", bob.Label())
	require.NotNil(t, bob.Avatar)
	assert.Equal(t, []byte{255, 255, 255, 255, 255, 0, 0, 255}, bob.Avatar.Pix, "rows flipped to top-down")

	carol := entries[1]
	assert.True(t, carol.Dimmed)
	assert.Equal(t, "Carol\nOffline", carol.Label())
	require.NotNil(t, carol.Avatar)
	assert.Equal(t, []byte{89, 89, 89, 89, 89, 0, 0, 89}, carol.Avatar.Pix)
}

func TestFriendsPanelAwayAndBusyAreNotDimmed(t *testing.T) {
	dir := &fakeDirectory{friends: []Persona{
		{ID: "a", Name: "A", Status: StatusAway},
		{ID: "b", Name: "B", Status: StatusBusy},
	}}
	p := &recordingFriends{}
	entries, err := NewFriendsPanel(dir, p, zaptest.NewLogger(t).Sugar()).Refresh(t.Context())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.Dimmed, e.ID)
		assert.Nil(t, e.Avatar)
	}
}

func TestFriendsPanelAvatarFailureStillShowsFriend(t *testing.T) {
	dir := &fakeDirectory{
		friends: []Persona{
			{ID: "bob", Name: "Bob", Status: StatusOnline},
			{ID: "carol", Name: "Carol", Status: StatusOnline},
		},
		avatars:   map[MemberID]*Avatar{"carol": {Width: 2, Height: 2, Pix: []byte{1}}},
		avatarErr: map[MemberID]error{"bob": ErrUnavailable},
	}
	p := &recordingFriends{}
	entries, err := NewFriendsPanel(dir, p, zaptest.NewLogger(t).Sugar()).Refresh(t.Context())
	require.NoError(t, err)
	require.Len(t, p.shown, 2)
	assert.Nil(t, entries[0].Avatar)
	assert.Nil(t, entries[1].Avatar, "malformed avatar is skipped")
}

func TestFriendsPanelListErrorKeepsPanel(t *testing.T) {
	dir := &fakeDirectory{friends: []Persona{{ID: "bob", Name: "Bob", Status: StatusOnline}}}
	p := &recordingFriends{}
	panel := NewFriendsPanel(dir, p, zaptest.NewLogger(t).Sugar())
	_, err := panel.Refresh(t.Context())
	require.NoError(t, err)

	dir.listErr = errors.New("boom")
	_, err = panel.Refresh(t.Context())
	require.Error(t, err)
	assert.Equal(t, 1, p.clears)
	assert.Len(t, p.shown, 1)
}

func TestFriendsPanelOverLocalHub(t *testing.T) {
	h := newTestHub(t, 4)
	h.SetProfile("bob", Profile{Name: "Bob", Status: StatusBusy})
	require.NoError(t, h.AddFriend("alice", "bob"))
	require.NoError(t, h.AddFriend("alice", "dave"))
	alice := h.Connect("alice")
	defer alice.Close()

	p := &recordingFriends{}
	entries, err := NewFriendsPanel(alice, p, zaptest.NewLogger(t).Sugar()).Refresh(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Persona{ID: "bob", Name: "Bob", Status: StatusBusy}, entries[0].Persona)
	assert.Equal(t, Persona{ID: "dave", Name: PlaceholderName, Status: StatusOffline}, entries[1].Persona)
	assert.True(t, entries[1].Dimmed)
}
