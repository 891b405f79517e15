package lobby

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// 离线好友头像的不透明度
const offlineAvatarAlpha = 0.35

// FriendDirectory 好友面板需要的查询
type FriendDirectory interface {
	Friends(ctx context.Context) ([]Persona, error)
	Avatar(ctx context.Context, id MemberID) (*Avatar, error)
}

// FriendEntry 面板中的一行；离线好友 Dimmed 为 true，头像已变暗
type FriendEntry struct {
	Persona
	Avatar *image.RGBA
	Dimmed bool
}

// Label 名字 + 状态，两行
func (e FriendEntry) Label() string { return e.Name + "\n" + e.Status.String() }

// FriendPresenter 好友面板表现层（只写）
type FriendPresenter interface {
	ClearFriends()
	ShowFriend(e FriendEntry)
}

// FriendsPanel 拉取好友列表与头像，交给表现层显示
type FriendsPanel struct {
	dir       FriendDirectory
	presenter FriendPresenter
	log       *zap.SugaredLogger
}

func NewFriendsPanel(dir FriendDirectory, presenter FriendPresenter, log *zap.SugaredLogger) *FriendsPanel {
	return &FriendsPanel{dir: dir, presenter: presenter, log: log}
}

// Refresh 重建面板。列表拉取失败时保留旧内容；单个头像失败只记日志
func (p *FriendsPanel) Refresh(ctx context.Context) ([]FriendEntry, error) {
	friends, err := p.dir.Friends(ctx)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	p.presenter.ClearFriends()

	entries := make([]FriendEntry, 0, len(friends))
	for _, f := range friends {
		e := FriendEntry{Persona: f, Dimmed: !f.Online()}
		e.Avatar = p.avatar(ctx, f.ID, e.Dimmed)
		p.presenter.ShowFriend(e)
		entries = append(entries, e)
	}
	return entries, nil
}

func (p *FriendsPanel) avatar(ctx context.Context, id MemberID, dimmed bool) *image.RGBA {
	a, err := p.dir.Avatar(ctx, id)
	if err != nil {
		p.log.Warnw("friend avatar fetch failed", "member", id, "err", err)
		return nil
	}
	img, err := a.ToImage()
	if err != nil {
		p.log.Warnw("friend avatar invalid", "member", id, "err", err)
		return nil
	}
	if img != nil && dimmed {
		fade(img, offlineAvatarAlpha)
	}
	return img
}

// fade 整体乘以不透明度（image.RGBA 为预乘 alpha，四个通道一起缩放）
func fade(img *image.RGBA, alpha float64) {
	for i, v := range img.Pix {
		img.Pix[i] = uint8(float64(v) * alpha)
	}
}
