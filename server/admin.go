package server

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
)

// DefaultRoomID 未指定房间时使用
const DefaultRoomID = "room-1"

func roomParam(r *http.Request) string {
    roomID := r.URL.Query().Get("room")
    if roomID == "" {
        roomID = DefaultRoomID
    }
    return roomID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新基本规则）
// GET /admin/config?room=room-1  返回当前配置
// POST /admin/config?room=room-1 以 JSON 载荷更新部分字段
func (m *RoomManager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
    roomID := roomParam(r)
    room := m.GetOrCreateRoom(roomID)

    type cfg struct {
        MoveSpeed        *float64 `json:"moveSpeed,omitempty"`
        LookSensitivity  *float64 `json:"lookSensitivity,omitempty"`
        MaxInputsPerTick *int     `json:"maxInputsPerTick,omitempty"`
    }

    switch r.Method {
    case http.MethodGet:
        var cur cfg
        err := room.Do(r.Context(), func() {
            cur = cfg{
                MoveSpeed:        ptr(room.cfg.MoveSpeed),
                LookSensitivity:  ptr(room.cfg.LookSensitivity),
                MaxInputsPerTick: ptr(room.cfg.MaxInputsPerTick),
            }
        })
        if err != nil {
            http.Error(w, err.Error(), http.StatusServiceUnavailable)
            return
        }
        writeJSON(w, http.StatusOK, cur)
    case http.MethodPost:
        var body cfg
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            http.Error(w, "invalid json", http.StatusBadRequest)
            return
        }
        err := room.Do(r.Context(), func() {
            if body.MoveSpeed != nil { room.cfg.MoveSpeed = *body.MoveSpeed }
            if body.LookSensitivity != nil { room.cfg.LookSensitivity = *body.LookSensitivity }
            if body.MaxInputsPerTick != nil { room.cfg.MaxInputsPerTick = *body.MaxInputsPerTick }
            m.log.Infof("config updated: room=%s moveSpeed=%.2f lookSensitivity=%.2f maxInputsPerTick=%d",
                roomID, room.cfg.MoveSpeed, room.cfg.LookSensitivity, room.cfg.MaxInputsPerTick)
        })
        if err != nil {
            http.Error(w, err.Error(), http.StatusServiceUnavailable)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"ok": true})
    default:
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
    }
}

// HandleAdminWorld 读取 / 设置房间聚合状态（警报、热度）
// GET /admin/world?room=room-1
// POST /admin/world?room=room-1 {"alarm":true,"heat":3}
func (m *RoomManager) HandleAdminWorld(w http.ResponseWriter, r *http.Request) {
    room := m.GetOrCreateRoom(roomParam(r))

    switch r.Method {
    case http.MethodGet:
        var cur WorldDelta
        err := room.Do(r.Context(), func() {
            cur = WorldDelta{Alarm: ptr(room.world.AlarmActive.Get()), Heat: ptr(room.world.Heat.Get())}
        })
        if err != nil {
            http.Error(w, err.Error(), http.StatusServiceUnavailable)
            return
        }
        writeJSON(w, http.StatusOK, cur)
    case http.MethodPost:
        var body WorldDelta
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            http.Error(w, "invalid json", http.StatusBadRequest)
            return
        }
        // 先校验再写入，避免只生效一半
        if body.Heat != nil && *body.Heat < 0 {
            http.Error(w, fmt.Sprintf("set heat %d: %v", *body.Heat, ErrInvalidAmount), http.StatusBadRequest)
            return
        }
        var applyErr error
        err := room.Do(r.Context(), func() {
            if body.Alarm != nil {
                if applyErr = room.world.SetAlarm(RoleAuthority, *body.Alarm); applyErr != nil {
                    return
                }
            }
            if body.Heat != nil {
                applyErr = room.world.SetHeat(RoleAuthority, *body.Heat)
            }
        })
        if err != nil {
            http.Error(w, err.Error(), http.StatusServiceUnavailable)
            return
        }
        if applyErr != nil {
            http.Error(w, applyErr.Error(), http.StatusBadRequest)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"ok": true})
    default:
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
    }
}

// HandleStartHeist POST /admin/heist?room=room-1 广播行动开始
func (m *RoomManager) HandleStartHeist(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    room := m.GetOrCreateRoom(roomParam(r))
    if err := room.Do(r.Context(), room.StartHeist); err != nil {
        http.Error(w, err.Error(), http.StatusServiceUnavailable)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=room-1
func (m *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
    roomID := roomParam(r)
    room, ok := m.Room(roomID)
    if !ok {
        http.Error(w, "room not found", http.StatusNotFound)
        return
    }
    var tick int64
    _ = room.Do(r.Context(), func() { tick = room.tickSeq })
    writeJSON(w, http.StatusOK, map[string]any{
        "room":    roomID,
        "tick":    tick,
        "metrics": room.metrics.Snapshot(),
    })
}

// JournalReader 可查询的对局日志
type JournalReader interface {
    Recent(ctx context.Context, room string, limit int) ([]JournalEvent, error)
}

// HandleJournal GET /admin/journal?room=room-1&limit=50
func HandleJournal(j JournalReader) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
        events, err := j.Recent(r.Context(), roomParam(r), limit)
        if err != nil {
            http.Error(w, err.Error(), http.StatusInternalServerError)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"events": events})
    }
}
