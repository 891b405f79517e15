// heistbot 无界面参与者：登记资料、创建或加入大厅，开局后连上游戏服务器并对 NPC 开火、开关门
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"heistarena/lobby"
	"heistarena/server"
)

type options struct {
	lobbyURL   string
	gameAddr   string
	member     string
	name       string
	create     bool
	join       string
	invite     string
	friends    string
	minMembers int
	shootEvery time.Duration
	damage     float64
}

func main() {
	var o options
	flag.StringVar(&o.lobbyURL, "lobby", "http://localhost:8080", "lobby service base URL")
	flag.StringVar(&o.gameAddr, "game-addr", "ws://localhost:8080/ws?room=room-1", "game server address published when hosting")
	flag.StringVar(&o.member, "member", "", "member id (defaults to -name)")
	flag.StringVar(&o.name, "name", "bot", "display name")
	flag.BoolVar(&o.create, "create", false, "create a lobby and start the game once -min-members are in")
	flag.StringVar(&o.join, "join", "", "lobby id to join")
	flag.StringVar(&o.invite, "invite", "", "member id to invite after creating the lobby")
	flag.StringVar(&o.friends, "friends", "", "comma-separated member ids to befriend and list")
	flag.IntVar(&o.minMembers, "min-members", 2, "members required before the owner starts the game")
	flag.DurationVar(&o.shootEvery, "shoot-every", time.Second, "interval between shots")
	flag.Float64Var(&o.damage, "damage", 25, "damage per shot")
	flag.Parse()
	if o.member == "" {
		o.member = o.name
	}

	log, err := server.NewLogger(server.LogConfig{Level: "info", Stderr: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer server.SyncLogger(log)
	log = log.With("member", o.member)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("heistbot failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, log *zap.SugaredLogger) error {
	game := newGameConn(server.PlayerID(o.member), o.shootEvery, o.damage, log.Named("game"))

	client, err := lobby.Dial(ctx, o.lobbyURL, lobby.MemberID(o.member), log.Named("lobby"))
	if err != nil {
		// 大厅不可用：关闭大厅功能，直接连游戏服务器
		log.Errorw("lobby unavailable; lobby features disabled", "err", err)
		if err := game.StartClient(ctx, o.gameAddr); err != nil {
			return err
		}
		return game.Wait()
	}
	defer client.Close()

	if err := client.SetProfile(ctx, lobby.Profile{Name: o.name, Status: lobby.StatusOnline, Avatar: gradientAvatar(32)}); err != nil {
		log.Warnw("profile upload failed", "err", err)
	}

	showFriends(ctx, client, o.friends, log.Named("friends"))

	roster := lobby.NewRosterSync(client, logPresenter{log: log.Named("roster")}, log.Named("roster"))
	session := lobby.NewSession(client, roster, game, o.gameAddr, 4, log.Named("session"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error { return drive(gctx, o, client, session, log) })
	g.Go(func() error {
		<-gctx.Done()
		return game.Wait()
	})
	return g.Wait()
}

// drive 创建/加入大厅；房主在人数够了之后开局
func drive(ctx context.Context, o options, client *lobby.Client, session *lobby.Session, log *zap.SugaredLogger) error {
	switch {
	case o.create:
		if err := session.CreateLobby(ctx); err != nil {
			return err
		}
	case o.join != "":
		if err := session.Join(ctx, lobby.LobbyID(o.join)); err != nil {
			return err
		}
	default:
		log.Info("waiting for an invite")
		return nil
	}
	if !o.create {
		return nil
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	invited := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		snap, ok := session.Lobby()
		if !ok {
			continue
		}
		if o.invite != "" && !invited {
			invited = true
			if err := client.Invite(ctx, lobby.MemberID(o.invite), snap.ID); err != nil {
				log.Warnw("invite failed", "to", o.invite, "err", err)
			}
			log.Infow("lobby ready", "lobby", snap.ID)
		}
		if len(snap.Members) >= o.minMembers {
			return session.StartGame(ctx)
		}
	}
}

// showFriends 加好友后刷新一次好友面板；失败不影响大厅流程
func showFriends(ctx context.Context, client *lobby.Client, ids string, log *zap.SugaredLogger) {
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if err := client.AddFriend(ctx, lobby.MemberID(id)); err != nil {
			log.Warnw("add friend failed", "friend", id, "err", err)
		}
	}
	panel := lobby.NewFriendsPanel(client, logPresenter{log: log}, log)
	if _, err := panel.Refresh(ctx); err != nil {
		log.Warnw("friends list unavailable", "err", err)
	}
}

// logPresenter 名单表现层：写日志
type logPresenter struct {
	log *zap.SugaredLogger
}

func (p logPresenter) Show(h *lobby.Handle)   { p.log.Infow("member shown", "member", h.ID, "name", h.Name) }
func (p logPresenter) Update(h *lobby.Handle) { p.log.Infow("member resolved", "member", h.ID, "name", h.Name, "avatar", h.Avatar != nil) }
func (p logPresenter) Remove(h *lobby.Handle) { p.log.Infow("member removed", "member", h.ID) }

func (p logPresenter) ClearFriends() {}

func (p logPresenter) ShowFriend(e lobby.FriendEntry) {
	p.log.Infow("friend", "member", e.ID, "name", e.Name, "status", e.Status.String(), "dimmed", e.Dimmed, "avatar", e.Avatar != nil)
}

// gradientAvatar 生成一张简单的渐变头像（行序自下而上）
func gradientAvatar(size int) *lobby.Avatar {
	pix := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := (y*size + x) * 4
			pix[i] = byte(x * 255 / size)
			pix[i+1] = byte(y * 255 / size)
			pix[i+2] = 128
			pix[i+3] = 255
		}
	}
	return &lobby.Avatar{Width: size, Height: size, Pix: pix}
}
