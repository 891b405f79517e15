package lobby

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State 会话状态
type State int

const (
	StateNoLobby State = iota
	StateLobbyRequested
	StateLobbyActive
	StateHostAddressPublished
	StateClientConnecting
	StateLobbyTorndown
)

func (s State) String() string {
	switch s {
	case StateNoLobby:
		return "NoLobby"
	case StateLobbyRequested:
		return "LobbyRequested"
	case StateLobbyActive:
		return "LobbyActive"
	case StateHostAddressPublished:
		return "HostAddressPublished"
	case StateClientConnecting:
		return "ClientConnecting"
	case StateLobbyTorndown:
		return "LobbyTorndown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connector 游戏连接：房主 StartHost，其他成员看到发布的地址后 StartClient
type Connector interface {
	Active() bool
	StartHost(ctx context.Context, addr string) error
	StartClient(ctx context.Context, addr string) error
}

// Session 一个参与者的大厅会话：状态机 + 成员名单
type Session struct {
	svc        Service
	roster     *RosterSync
	conn       Connector
	hostAddr   string
	maxMembers int
	log        *zap.SugaredLogger

	mu       sync.Mutex // 保护以下字段以及 roster
	state    State
	lobby    Snapshot
	hasLobby bool
}

// NewSession hostAddr 为本人作为房主时发布的游戏服务器地址
func NewSession(svc Service, roster *RosterSync, conn Connector, hostAddr string, maxMembers int, log *zap.SugaredLogger) *Session {
	return &Session{
		svc:        svc,
		roster:     roster,
		conn:       conn,
		hostAddr:   hostAddr,
		maxMembers: maxMembers,
		log:        log,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Lobby 当前大厅
func (s *Session) Lobby() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobby, s.hasLobby
}

// MemberName 名单中成员当前的显示名
func (s *Session) MemberName(id MemberID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.roster.Handle(id)
	if !ok {
		return "", false
	}
	return h.Name, true
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.log.Infow("lobby session state", "from", s.state, "to", next)
	s.state = next
}

// CreateLobby 请求创建大厅；进入事件到达后成为 LobbyActive
func (s *Session) CreateLobby(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.setState(StateLobbyRequested)
	s.mu.Unlock()

	if _, err := s.svc.CreateLobby(ctx, s.maxMembers); err != nil {
		s.mu.Lock()
		if s.state == StateLobbyRequested {
			s.setState(prev)
		}
		s.mu.Unlock()
		return fmt.Errorf("create lobby: %w", err)
	}
	return nil
}

// Join 请求加入大厅
func (s *Session) Join(ctx context.Context, id LobbyID) error {
	s.mu.Lock()
	prev := s.state
	s.setState(StateLobbyRequested)
	s.mu.Unlock()

	if _, err := s.svc.JoinLobby(ctx, id); err != nil {
		s.mu.Lock()
		if s.state == StateLobbyRequested {
			s.setState(prev)
		}
		s.mu.Unlock()
		return fmt.Errorf("join lobby %s: %w", id, err)
	}
	return nil
}

// StartGame 只有房主可以开始：发布地址，未连接时作为房主连接
func (s *Session) StartGame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasLobby {
		return fmt.Errorf("start game: %w", ErrNoLobby)
	}
	if s.lobby.Owner != s.svc.Self() {
		return fmt.Errorf("start game: %w", ErrNotOwner)
	}
	if err := s.svc.SetData(ctx, s.lobby.ID, HostAddressKey, s.hostAddr); err != nil {
		return fmt.Errorf("publish host address: %w", err)
	}
	s.setState(StateHostAddressPublished)
	if !s.conn.Active() {
		if err := s.conn.StartHost(ctx, s.hostAddr); err != nil {
			return fmt.Errorf("start host: %w", err)
		}
	}
	return nil
}

// Leave 离开大厅并清空名单
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasLobby {
		return nil
	}
	err := s.svc.LeaveLobby(ctx, s.lobby.ID)
	s.roster.Clear()
	s.hasLobby = false
	s.lobby = Snapshot{}
	s.setState(StateLobbyTorndown)
	if err != nil {
		return fmt.Errorf("leave lobby: %w", err)
	}
	return nil
}

// Run 会话循环：处理大厅通知与名单解析结果，直到 ctx 取消或事件流关闭
func (s *Session) Run(ctx context.Context) error {
	events := s.svc.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				s.log.Warn("lobby event stream ended")
				return ErrUnavailable
			}
			s.handle(ctx, ev)
		case res := <-s.roster.Results():
			s.mu.Lock()
			s.roster.Apply(res)
			s.mu.Unlock()
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventEntered:
		s.lobby = ev.Lobby
		s.hasLobby = true
		if s.state != StateHostAddressPublished && s.state != StateClientConnecting {
			s.setState(StateLobbyActive)
		}
		s.roster.Reset(ctx, ev.Lobby.Members)
		// 进入的大厅可能已经开局（地址已发布）
		s.checkHostAddress(ctx)
	case EventJoinRequested:
		s.log.Infow("lobby invite accepted", "lobby", ev.Lobby.ID, "from", ev.Member)
		s.setState(StateLobbyRequested)
		if _, err := s.svc.JoinLobby(ctx, ev.Lobby.ID); err != nil {
			s.log.Warnw("join from invite failed", "lobby", ev.Lobby.ID, "err", err)
			if s.hasLobby {
				s.setState(StateLobbyActive)
			} else {
				s.setState(StateNoLobby)
			}
		}
	default:
		if !s.hasLobby || ev.Lobby.ID != s.lobby.ID {
			return
		}
		s.lobby = ev.Lobby
		switch ev.Kind {
		case EventMemberJoined:
			s.roster.Add(ctx, ev.Member)
		case EventMemberLeft:
			s.roster.Remove(ev.Member)
		case EventDataChanged:
			s.checkHostAddress(ctx)
		}
	}
}

// checkHostAddress 地址已发布且本机既未托管也未连接时，作为客户端连接
func (s *Session) checkHostAddress(ctx context.Context) {
	addr := s.lobby.Data[HostAddressKey]
	if addr == "" || s.conn.Active() || s.state == StateHostAddressPublished {
		return
	}
	s.setState(StateClientConnecting)
	s.log.Infow("connecting to host", "addr", addr)
	if err := s.conn.StartClient(ctx, addr); err != nil {
		s.log.Warnw("connect to host failed", "addr", addr, "err", err)
	}
}
