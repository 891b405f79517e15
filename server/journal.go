package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// JournalKind 对局事件类型
type JournalKind string

const (
	EventPlayerJoined JournalKind = "player_joined"
	EventPlayerLeft   JournalKind = "player_left"
	EventNPCKilled    JournalKind = "npc_killed"
	EventDoorToggled  JournalKind = "door_toggled"
	EventTrapHit      JournalKind = "trap_hit"
	EventHeistStarted JournalKind = "heist_started"
)

// JournalEvent 一条对局事件
type JournalEvent struct {
	Room   string      `json:"room"`
	Tick   int64       `json:"tick"`
	Kind   JournalKind `json:"kind"`
	NetID  NetID       `json:"netId,omitempty"`
	Player PlayerID    `json:"player,omitempty"`
	Detail string      `json:"detail,omitempty"`
	At     time.Time   `json:"at"`
}

// Recorder 房间写入事件的接口；实现不能阻塞 Tick
type Recorder interface {
	Record(ev JournalEvent)
}

// NopRecorder 关闭日志时使用
type NopRecorder struct{}

func (NopRecorder) Record(JournalEvent) {}

// SQLiteJournal 单写协程的 SQLite 事件日志
type SQLiteJournal struct {
	db  *sql.DB
	log *zap.SugaredLogger

	ch      chan JournalEvent
	wg      sync.WaitGroup
	mu      sync.RWMutex // 保护 closed 与 ch 的关闭
	closed  bool
	dropped atomic.Int64
}

func OpenJournal(path string, buffer int, log *zap.SugaredLogger) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}
	if buffer <= 0 {
		buffer = 1024
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initJournalSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{db: db, log: log, ch: make(chan JournalEvent, buffer)}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initJournalSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room TEXT NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			net_id INTEGER NOT NULL DEFAULT 0,
			player TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS events_room_id ON events(room, id);",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
	}
	return nil
}

// Record 非阻塞入队；队列满时丢弃并计数
func (j *SQLiteJournal) Record(ev JournalEvent) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case j.ch <- ev:
	default:
		j.dropped.Add(1)
	}
}

// Dropped 因队列满被丢弃的事件数
func (j *SQLiteJournal) Dropped() int64 { return j.dropped.Load() }

func (j *SQLiteJournal) loop() {
	for ev := range j.ch {
		_, err := j.db.Exec(
			"INSERT INTO events(room, tick, kind, net_id, player, detail, recorded_at) VALUES(?,?,?,?,?,?,?)",
			ev.Room, ev.Tick, string(ev.Kind), int64(ev.NetID), string(ev.Player), ev.Detail, ev.At.Format(time.RFC3339Nano),
		)
		if err != nil && j.log != nil {
			j.log.Warnw("journal insert failed", "kind", ev.Kind, "err", err)
		}
	}
}

// Recent 读取房间最近的 limit 条事件（按时间正序）
func (j *SQLiteJournal) Recent(ctx context.Context, room string, limit int) ([]JournalEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT room, tick, kind, net_id, player, detail, recorded_at FROM (
			SELECT id, room, tick, kind, net_id, player, detail, recorded_at FROM events
			WHERE room = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEvent
	for rows.Next() {
		var (
			ev     JournalEvent
			kind   string
			netID  int64
			player string
			at     string
		)
		if err := rows.Scan(&ev.Room, &ev.Tick, &kind, &netID, &player, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		ev.Kind = JournalKind(kind)
		ev.NetID = NetID(netID)
		ev.Player = PlayerID(player)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close 停止接收并等待写协程排空队列
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	return j.db.Close()
}
