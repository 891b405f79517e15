package main

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heistarena/server"
)

// gameConn 实现 lobby.Connector：连接游戏服务器并维护状态镜像
type gameConn struct {
	player     server.PlayerID
	shootEvery time.Duration
	damage     float64
	log        *zap.SugaredLogger

	active atomic.Bool
	wg     sync.WaitGroup
	errMu  sync.Mutex
	err    error
}

func newGameConn(player server.PlayerID, shootEvery time.Duration, damage float64, log *zap.SugaredLogger) *gameConn {
	return &gameConn{player: player, shootEvery: shootEvery, damage: damage, log: log}
}

func (g *gameConn) Active() bool { return g.active.Load() }

func (g *gameConn) StartHost(ctx context.Context, addr string) error {
	g.log.Infow("starting as host", "addr", addr)
	return g.connect(ctx, addr)
}

func (g *gameConn) StartClient(ctx context.Context, addr string) error {
	g.log.Infow("starting as client", "addr", addr)
	return g.connect(ctx, addr)
}

// Wait 等待连接协程结束，返回其错误
func (g *gameConn) Wait() error {
	g.wg.Wait()
	g.errMu.Lock()
	defer g.errMu.Unlock()
	return g.err
}

func (g *gameConn) connect(ctx context.Context, addr string) error {
	if !g.active.CompareAndSwap(false, true) {
		return nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		g.active.Store(false)
		return fmt.Errorf("game addr %q: %w", addr, err)
	}
	q := u.Query()
	q.Set("player", string(g.player))
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		g.active.Store(false)
		return fmt.Errorf("dial game %s: %w", u.String(), err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.active.Store(false)
		if err := g.play(ctx, ws); err != nil {
			g.errMu.Lock()
			g.err = err
			g.errMu.Unlock()
		}
	}()
	return nil
}

// play 单协程：读帧更新镜像，定时开火与开门
func (g *gameConn) play(ctx context.Context, ws *websocket.Conn) error {
	defer ws.Close()

	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			_, b, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			frames <- b
		}
	}()

	replica := server.NewReplica(replicaLogger{log: g.log})
	ticker := time.NewTicker(g.shootEvery)
	defer ticker.Stop()
	var seq int64
	send := func(m server.InputMessage) error {
		seq++
		m.Seq = seq
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return ws.WriteJSON(m)
	}

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		case b, ok := <-frames:
			if !ok {
				err := <-readErr
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return nil
				}
				return fmt.Errorf("game connection: %w", err)
			}
			if err := replica.HandleFrame(b); err != nil {
				g.log.Warnw("bad frame", "err", err)
			}
		case <-ticker.C:
			if npcs := replica.Entities(server.KindNPC); len(npcs) > 0 {
				if err := send(server.InputMessage{Type: string(server.InputHit), NetID: npcs[0].ID, Damage: g.damage}); err != nil {
					return err
				}
			}
			if doors := replica.Entities(server.KindDoor); len(doors) > 0 {
				if err := send(server.InputMessage{Type: string(server.InputDoor), NetID: doors[0].ID}); err != nil {
					return err
				}
			}
		}
	}
}

// replicaLogger 表现层：给实体字段挂 Hook 并写日志
type replicaLogger struct {
	log *zap.SugaredLogger
}

func (l replicaLogger) OnSpawn(e *server.ReplicaEntity) {
	l.log.Debugw("spawned", "netId", e.ID, "kind", e.Kind)
	if e.Health != nil {
		e.Health.Observe(server.HookFunc[float64](func(_, newHP float64) {
			l.log.Infow("hp bar", "netId", e.ID, "label", server.HealthLabel(newHP, e.MaxHealth), "ratio", e.HealthRatio())
		}))
	}
	if e.Open != nil {
		e.Open.Observe(server.HookFunc[bool](func(_, open bool) {
			l.log.Infow("door", "netId", e.ID, "open", open, "angle", server.DoorAngle(open, e.OpenAngle))
		}))
	}
}

func (l replicaLogger) OnDestroy(e *server.ReplicaEntity) {
	l.log.Infow("destroyed", "netId", e.ID, "kind", e.Kind)
}

func (l replicaLogger) OnRPC(call server.RPCCall) {
	switch call.Name {
	case server.RPCHeistStarted:
		l.log.Info("heist started, pray")
	default:
		l.log.Infow("rpc", "name", call.Name, "netId", call.NetID, "point", call.Point)
	}
}
