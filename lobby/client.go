package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client 通过 HTTP + WebSocket 事件流访问大厅服务
type Client struct {
	base   *url.URL
	self   MemberID
	http   *http.Client
	ws     *websocket.Conn
	events chan Event
	log    *zap.SugaredLogger

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

// Dial 连接大厅服务并订阅 self 的事件流；服务不可用时返回 ErrUnavailable
func Dial(ctx context.Context, baseURL string, self MemberID, log *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("lobby url %q: %w", baseURL, err)
	}

	wsURL := *base
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimSuffix(wsURL.Path, "/") + "/lobby/events"
	wsURL.RawQuery = url.Values{"member": {string(self)}}.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %v", wsURL.String(), ErrUnavailable, err)
	}

	c := &Client{
		base:     base,
		self:     self,
		http:     &http.Client{Timeout: 10 * time.Second},
		ws:       ws,
		events:   make(chan Event, subscriberBuffer),
		log:      log,
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.events)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnw("lobby event stream closed", "err", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Warnw("bad lobby event", "err", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) Self() MemberID       { return c.self }
func (c *Client) Events() <-chan Event { return c.events }

// Close 关闭事件流（服务端按断线处理），等待读协程退出
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	<-c.readDone
	return err
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

// do 发送请求并解码响应；out 为 nil 时丢弃响应体
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, statusError(path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// statusError HTTP 状态码还原为领域错误
func statusError(path string, status int, msg string) error {
	var base error
	switch status {
	case http.StatusNotFound:
		base = ErrNoLobby
	case http.StatusForbidden:
		base = ErrNotOwner
		if strings.Contains(msg, ErrNotMember.Error()) {
			base = ErrNotMember
		}
	case http.StatusConflict:
		base = ErrLobbyFull
	case http.StatusBadRequest:
		if !strings.Contains(msg, ErrSelfFriend.Error()) {
			return fmt.Errorf("%s: status %d: %s", path, status, msg)
		}
		base = ErrSelfFriend
	default:
		return fmt.Errorf("%s: status %d: %s", path, status, msg)
	}
	return fmt.Errorf("%s: %w", path, base)
}

func (c *Client) CreateLobby(ctx context.Context, maxMembers int) (Snapshot, error) {
	var snap Snapshot
	_, err := c.do(ctx, http.MethodPost, "/lobby/create", nil, lobbyRequest{Member: c.self, MaxMembers: maxMembers}, &snap)
	return snap, err
}

func (c *Client) JoinLobby(ctx context.Context, id LobbyID) (Snapshot, error) {
	var snap Snapshot
	_, err := c.do(ctx, http.MethodPost, "/lobby/join", nil, lobbyRequest{Member: c.self, Lobby: id}, &snap)
	return snap, err
}

func (c *Client) LeaveLobby(ctx context.Context, id LobbyID) error {
	_, err := c.do(ctx, http.MethodPost, "/lobby/leave", nil, lobbyRequest{Member: c.self, Lobby: id}, nil)
	return err
}

func (c *Client) SetData(ctx context.Context, id LobbyID, key, value string) error {
	_, err := c.do(ctx, http.MethodPost, "/lobby/data", nil, lobbyRequest{Member: c.self, Lobby: id, Key: key, Value: value}, nil)
	return err
}

// Invite 邀请好友加入大厅
func (c *Client) Invite(ctx context.Context, to MemberID, id LobbyID) error {
	_, err := c.do(ctx, http.MethodPost, "/lobby/invite", nil, lobbyRequest{Member: c.self, Lobby: id, To: to}, nil)
	return err
}

// SetProfile 上传自己的资料（名字、状态、头像）
func (c *Client) SetProfile(ctx context.Context, p Profile) error {
	_, err := c.do(ctx, http.MethodPut, "/lobby/profile", nil, profileRequest{Member: c.self, Profile: p}, nil)
	return err
}

// Persona 成员的显示名与在线状态
func (c *Client) Persona(ctx context.Context, id MemberID) (Persona, error) {
	var resp personaResponse
	if _, err := c.do(ctx, http.MethodGet, "/lobby/persona", url.Values{"member": {string(id)}}, nil, &resp); err != nil {
		return Persona{ID: id, Name: PlaceholderName, Status: StatusOffline}, err
	}
	return Persona{ID: id, Name: resp.Name, Status: resp.Status}, nil
}

func (c *Client) PersonaName(ctx context.Context, id MemberID) (string, error) {
	p, err := c.Persona(ctx, id)
	return p.Name, err
}

// AddFriend 与 id 互加好友
func (c *Client) AddFriend(ctx context.Context, id MemberID) error {
	_, err := c.do(ctx, http.MethodPost, "/lobby/friends", nil, lobbyRequest{Member: c.self, To: id}, nil)
	return err
}

// Friends 好友列表（含在线状态）
func (c *Client) Friends(ctx context.Context) ([]Persona, error) {
	var out []Persona
	if _, err := c.do(ctx, http.MethodGet, "/lobby/friends", url.Values{"member": {string(c.self)}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Avatar(ctx context.Context, id MemberID) (*Avatar, error) {
	var a Avatar
	status, err := c.do(ctx, http.MethodGet, "/lobby/avatar", url.Values{"member": {string(id)}}, nil, &a)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &a, nil
}
