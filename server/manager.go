package server

import (
    "context"
    "sync"

    "go.uber.org/zap"
)

// RoomManager 管理多个房间的生命周期；由 main 创建并注入到各个 Handler
type RoomManager struct {
    mu    sync.RWMutex
    rooms map[string]*Room

    ctx     context.Context
    cfg     RoomConfig
    log     *zap.SugaredLogger
    journal Recorder
    wg      sync.WaitGroup
}

// NewRoomManager ctx 取消时所有房间停止 Tick
func NewRoomManager(ctx context.Context, cfg RoomConfig, log *zap.SugaredLogger, journal Recorder) *RoomManager {
    return &RoomManager{
        rooms:   make(map[string]*Room),
        ctx:     ctx,
        cfg:     cfg,
        log:     log,
        journal: journal,
    }
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
    m.mu.Lock()
    defer m.mu.Unlock()
    r, ok := m.rooms[id]
    if !ok {
        r = NewRoom(id, m.cfg, m.log, m.journal)
        m.rooms[id] = r
        m.wg.Add(1)
        go func() {
            defer m.wg.Done()
            _ = r.Run(m.ctx)
        }()
    }
    return r
}

// Room 查找已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    r, ok := m.rooms[id]
    return r, ok
}

// Wait 等待所有房间的 Tick 循环退出
func (m *RoomManager) Wait() {
    m.wg.Wait()
}
