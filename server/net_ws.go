package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		// 为了实时性，丢弃消息（防止阻塞 Tick）
	}
}

// Close 关闭发送队列，写协程发完剩余消息后关闭底层连接
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端输入，转换为 Input 注入房间
func (c *ClientConn) readPump(room *Room, playerID PlayerID) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该玩家
	defer room.RequestLeave(playerID, c)
	c.ws.SetReadLimit(1 << 20) // 1MB
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				room.log.Debugw("read pump closed", "player", playerID, "err", err)
			}
			return
		}
		var im InputMessage
		if err := json.Unmarshal(payload, &im); err != nil {
			continue
		}
		in, ok := im.ToInput(playerID)
		if !ok {
			continue
		}
		room.OnInput(in)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=room-1&player=alice
func (m *RoomManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = DefaultRoomID
	}
	playerID := r.URL.Query().Get("player")
	if playerID == "" {
		http.Error(w, "missing player query", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnw("upgrade error", "err", err)
		return
	}

	room := m.GetOrCreateRoom(roomID)
	client := NewClientConn(ws)
	room.Join(PlayerID(playerID), client)

	go client.writePump()
	go client.readPump(room, PlayerID(playerID))
}
