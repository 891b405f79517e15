package server

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

var ErrRoomStopped = errors.New("room stopped")

type connRequest struct {
	id   PlayerID
	conn *ClientConn
}

// Room 房间世界：权威状态维护在内存，单线程 Tick 推进。
// entities / players / spawns / world 只允许在 Tick 线程中访问
type Room struct {
	ID string

	cfg     RoomConfig
	log     *zap.SugaredLogger
	metrics *RoomMetrics
	journal Recorder

	entities map[NetID]*Entity
	players  map[PlayerID]*Player
	nextID   NetID
	spawns   *SpawnCoordinator
	world    *WorldState

	inputChan chan Input
	joinChan  chan connRequest
	leaveChan chan connRequest
	callChan  chan func()
	done      chan struct{}

	outbox      []ServerMessage
	pending     []*Player
	tickSeq     int64
	inputsCount map[PlayerID]int
	lastSeq     map[PlayerID]int64
}

// NewRoom 创建房间：洗牌出生点并生成地图上的 NPC / 门 / 陷阱
func NewRoom(id string, cfg RoomConfig, log *zap.SugaredLogger, journal Recorder) *Room {
	if journal == nil {
		journal = NopRecorder{}
	}
	log = log.With("room", id)
	r := &Room{
		ID:          id,
		cfg:         cfg,
		log:         log,
		metrics:     &RoomMetrics{},
		journal:     journal,
		entities:    make(map[NetID]*Entity),
		players:     make(map[PlayerID]*Player),
		spawns:      NewSpawnCoordinator(cfg.Map.PlayerSpawns, log),
		world:       NewWorldState(),
		inputChan:   make(chan Input, cfg.InputBuffer), // 足够缓冲，避免网络读阻塞影响 Tick
		joinChan:    make(chan connRequest, 64),
		leaveChan:   make(chan connRequest, 64),
		callChan:    make(chan func(), 16),
		done:        make(chan struct{}),
		inputsCount: make(map[PlayerID]int),
		lastSeq:     make(map[PlayerID]int64),
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// 每局打乱一次，避免总是同一个出生顺序
	r.spawns.Shuffle(rand.New(rand.NewSource(seed)))
	r.spawnMap()
	return r
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// spawnMap 生成地图实体
func (r *Room) spawnMap() {
	r.spawn(KindMap, Transform{})
	for _, t := range r.cfg.Map.NPCSpawns {
		e := r.spawn(KindNPC, t)
		e.Health = NewHealth(r.cfg.Map.NPCMaxHealth)
		id := e.ID
		e.Health.Current.Observe(HookFunc[float64](func(oldHP, newHP float64) {
			r.log.Debugw("npc health changed", "netId", id, "old", oldHP, "new", newHP)
		}))
	}
	for _, t := range r.cfg.Map.DoorSpawns {
		e := r.spawn(KindDoor, t)
		e.Door = NewDoor(r.cfg.Map.DoorOpenAngle)
	}
	for _, t := range r.cfg.Map.TrapSpawns {
		e := r.spawn(KindTrap, t)
		e.Trap = NewTrap(t.Position, r.cfg.Map.TrapLaneLength, r.cfg.Map.TrapHitRadius)
		e.Trap.Launch(r.cfg.Map.TrapLaunchForce)
	}
	// 地图生成先于任何观察者，无需广播
	r.outbox = r.outbox[:0]
	r.log.Infow("map spawned", "entities", len(r.entities), "playerSpawns", r.spawns.Len())
}

// spawn 分配 NetID 并登记实体，向所有观察者广播 spawn
func (r *Room) spawn(kind EntityKind, t Transform) *Entity {
	r.nextID++
	e := newEntity(r.nextID, kind, t)
	r.entities[e.ID] = e
	r.queueSpawn(e)
	return e
}

// queueSpawn 组件挂载完毕后调用方需要重新排队时使用，旧的 spawn 消息会被替换
func (r *Room) queueSpawn(e *Entity) {
	for i := range r.outbox {
		if r.outbox[i].Type == MsgSpawn && r.outbox[i].NetID == e.ID {
			r.outbox = append(r.outbox[:i], r.outbox[i+1:]...)
			break
		}
	}
	r.queue(ServerMessage{Type: MsgSpawn, NetID: e.ID, Entities: []EntityState{fullState(e)}})
}

// destroy 移除实体并广播
func (r *Room) destroy(id NetID) {
	if _, ok := r.entities[id]; !ok {
		return
	}
	delete(r.entities, id)
	r.queue(ServerMessage{Type: MsgDestroy, NetID: id})
}

// Entity 按 NetID 查找（仅 Tick 线程）
func (r *Room) Entity(id NetID) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Join 请求在 Tick 线程中加入玩家
func (r *Room) Join(id PlayerID, conn *ClientConn) {
	select {
	case r.joinChan <- connRequest{id: id, conn: conn}:
	case <-r.done:
		if conn != nil {
			conn.Close()
		}
	}
}

// RequestLeave 请求在 Tick 线程中移除玩家，避免并发改动房间状态。
// conn 非空时只有它仍是玩家当前连接才会移除（重连后旧连接的退出会被忽略）
func (r *Room) RequestLeave(pid PlayerID, conn *ClientConn) {
	// 为保证移除一定生效，这里采用阻塞式写入（通道有容量，避免死锁）
	select {
	case r.leaveChan <- connRequest{id: pid, conn: conn}:
	case <-r.done:
	}
}

// OnInput 入站输入（不立即改变状态），仅记录意图，等下一次 Tick 处理
func (r *Room) OnInput(in Input) {
	// 不阻塞：输入拥塞时丢弃，保证 Tick 准时
	select {
	case r.inputChan <- in:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// Do 在 Tick 线程中执行 fn 并等待完成（管理接口使用）
func (r *Room) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case r.callChan <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// joinPlayer 从出生点轮询中取位置并生成玩家；重复加入视为重连，只替换连接
func (r *Room) joinPlayer(id PlayerID, conn *ClientConn) *Player {
	if p, ok := r.players[id]; ok {
		if p.Conn != nil && p.Conn != conn {
			p.Conn.Close()
		}
		p.Conn = conn
		if !r.isPending(p) {
			r.pending = append(r.pending, p)
		}
		r.log.Infow("player reconnected", "player", id, "netId", p.NetID)
		return p
	}

	start, ok := r.spawns.Next()
	if !ok {
		start = Transform{}
	}
	p := &Player{ID: id, Conn: conn}
	e := r.spawn(KindPlayer, start)
	e.Player = p
	p.NetID = e.ID
	r.queueSpawn(e)

	r.players[id] = p
	r.pending = append(r.pending, p)
	r.metrics.IncPlayersJoined()
	r.journal.Record(JournalEvent{Room: r.ID, Tick: r.tickSeq, Kind: EventPlayerJoined, NetID: e.ID, Player: id})
	r.log.Infow("player joined", "player", id, "netId", e.ID, "x", start.Position.X, "z", start.Position.Z)
	return p
}

// leavePlayer 将玩家移出房间并销毁其实体
func (r *Room) leavePlayer(id PlayerID) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	if p.Conn != nil {
		p.Conn.Close()
	}
	delete(r.players, id)
	delete(r.inputsCount, id)
	delete(r.lastSeq, id)
	r.destroy(p.NetID)
	r.journal.Record(JournalEvent{Room: r.ID, Tick: r.tickSeq, Kind: EventPlayerLeft, NetID: p.NetID, Player: id})
	r.log.Infow("player left", "player", id, "netId", p.NetID)
}

// BeginTick 重置帧内状态
func (r *Room) BeginTick() {
	r.tickSeq++
	clear(r.inputsCount)
}

// ProcessInputs 处理当前帧的加入/离开/管理调用/输入（非阻塞 drain）
func (r *Room) ProcessInputs() {
	for {
		select {
		case req := <-r.joinChan:
			r.joinPlayer(req.id, req.conn)
		case req := <-r.leaveChan:
			if p, ok := r.players[req.id]; ok && (req.conn == nil || p.Conn == req.conn) {
				r.leavePlayer(req.id)
			}
		case fn := <-r.callChan:
			fn()
		case in := <-r.inputChan:
			r.applyInput(in)
		default:
			return
		}
	}
}

func (r *Room) applyInput(in Input) {
	p, ok := r.players[in.PlayerID]
	if !ok {
		return
	}
	if in.Seq > 0 {
		if in.Seq <= r.lastSeq[in.PlayerID] {
			r.metrics.IncOldSeqIgnored()
			return
		}
		r.lastSeq[in.PlayerID] = in.Seq
	}
	if r.cfg.MaxInputsPerTick > 0 && r.inputsCount[in.PlayerID] >= r.cfg.MaxInputsPerTick {
		r.metrics.IncRateLimited()
		return
	}
	r.inputsCount[in.PlayerID]++
	r.metrics.IncAccepted()

	switch in.Kind {
	case InputMove:
		p.Move = in.Axis
	case InputLook:
		p.Look = in.Axis
	case InputHit:
		r.HitNPC(p.ID, in.Target, in.Damage)
	case InputDoor:
		r.ToggleDoor(p.ID, in.Target)
	}
}

// HitNPC 客户端请求对 NPC 造成伤害，任何玩家均可发起；伤害由服务端权威结算
func (r *Room) HitNPC(by PlayerID, target NetID, damage float64) {
	e, ok := r.entities[target]
	if !ok || e.Health == nil {
		r.metrics.IncUnknownTarget()
		r.log.Warnw("hit: npc not found on server", "player", by, "netId", target)
		return
	}
	killed, err := e.Health.ApplyDamage(RoleAuthority, damage)
	if err != nil {
		r.log.Warnw("hit rejected", "player", by, "netId", target, "err", err)
		return
	}
	r.log.Infow("npc hit on server", "player", by, "netId", target, "damage", damage, "hp", e.Health.Current.Get())
	if killed {
		r.metrics.IncNPCsKilled()
		r.journal.Record(JournalEvent{Room: r.ID, Tick: r.tickSeq, Kind: EventNPCKilled, NetID: target, Player: by})
		r.destroy(target)
	}
}

// ToggleDoor 任意玩家都可以切换门（不校验归属）
func (r *Room) ToggleDoor(by PlayerID, target NetID) {
	e, ok := r.entities[target]
	if !ok || e.Door == nil {
		r.metrics.IncUnknownTarget()
		r.log.Warnw("door: door not found on server", "player", by, "netId", target)
		return
	}
	open := e.Door.RequestToggle()
	r.metrics.IncDoorToggles()
	r.journal.Record(JournalEvent{Room: r.ID, Tick: r.tickSeq, Kind: EventDoorToggled, NetID: target, Player: by, Detail: boolDetail(open, "open", "closed")})
	r.log.Infow("toggling door state on server", "player", by, "netId", target, "open", open)
}

// StartHeist 广播行动开始（仅服务端）
func (r *Room) StartHeist() {
	r.queue(ServerMessage{Type: MsgRPC, RPC: &RPCCall{Name: RPCHeistStarted}})
	r.journal.Record(JournalEvent{Room: r.ID, Tick: r.tickSeq, Kind: EventHeistStarted})
	r.log.Info("heist started")
}

// UpdateWorld 推进玩家移动与陷阱
func (r *Room) UpdateWorld(dt float64) {
	positions := make(map[NetID]Vec3, len(r.players))
	for _, p := range r.players {
		e, ok := r.entities[p.NetID]
		if !ok {
			continue
		}
		next := p.integrate(e.Transform.Get(), r.cfg.MoveSpeed, r.cfg.LookSensitivity, dt)
		e.Transform.Set(next)
		positions[p.NetID] = next.Position
	}

	for _, id := range r.sortedIDs() {
		e := r.entities[id]
		if e.Trap == nil {
			continue
		}
		e.Trap.step(dt)
		for pid, point := range e.Trap.collide(positions) {
			r.metrics.IncTrapHits()
			r.queue(ServerMessage{Type: MsgRPC, RPC: &RPCCall{Name: RPCTrapHit, NetID: id, Point: ptr(point)}})
			r.journal.Record(JournalEvent{Room: r.ID, Tick: r.tickSeq, Kind: EventTrapHit, NetID: pid})
			r.log.Debugw("trap hit player", "trap", id, "player", pid)
		}
	}
}

// Tick 一次完整推进：处理输入 → 更新世界 → 广播结果
func (r *Room) Tick(dt float64) {
	r.BeginTick()
	r.ProcessInputs()
	r.UpdateWorld(dt)
	r.BroadcastDelta()
}

// shutdown 关闭全部连接
func (r *Room) shutdown() {
	for id := range r.players {
		r.leavePlayer(id)
	}
}

func boolDetail(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
