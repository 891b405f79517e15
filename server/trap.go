package server

// Trap 滚球陷阱：球在起点沿 +Z 的跑道上来回滚动，碰到玩家时广播命中特效
type Trap struct {
	Ball *SyncVar[Vec3] // 球的世界坐标，逐帧复制

	origin     Vec3
	ball       Vec3 // 相对 origin 的偏移
	velocity   float64
	laneLength float64
	hitRadius  float64

	touching map[NetID]bool // 上一帧接触中的玩家，只在进入接触时触发
}

func NewTrap(origin Vec3, laneLength, hitRadius float64) *Trap {
	return &Trap{
		Ball:       NewSyncVar(origin),
		origin:     origin,
		laneLength: laneLength,
		hitRadius:  hitRadius,
		touching:   make(map[NetID]bool),
	}
}

// Launch 给球一个初速度（房间启动时调用）
func (t *Trap) Launch(force float64) {
	t.velocity = force
}

// BallPosition 球的世界坐标
func (t *Trap) BallPosition() Vec3 { return t.origin.Add(t.ball) }

// step 推进 dt 秒，碰到跑道两端反弹
func (t *Trap) step(dt float64) {
	if t.velocity == 0 {
		return
	}
	t.ball.Z += t.velocity * dt
	if t.laneLength > 0 {
		if t.ball.Z > t.laneLength {
			t.ball.Z = 2*t.laneLength - t.ball.Z
			t.velocity = -t.velocity
		}
		if t.ball.Z < 0 {
			t.ball.Z = -t.ball.Z
			t.velocity = -t.velocity
		}
	}
	t.Ball.Set(t.BallPosition())
}

// collide 返回本帧新进入接触的玩家，以及各自的接触点
func (t *Trap) collide(players map[NetID]Vec3) map[NetID]Vec3 {
	ball := t.BallPosition()
	hits := make(map[NetID]Vec3)
	for id, pos := range players {
		in := ball.Dist(pos) <= t.hitRadius
		if in && !t.touching[id] {
			// 接触点取球心到玩家连线的中点
			hits[id] = ball.Add(pos.Sub(ball).Scale(0.5))
		}
		if in {
			t.touching[id] = true
		} else {
			delete(t.touching, id)
		}
	}
	for id := range t.touching {
		if _, ok := players[id]; !ok {
			delete(t.touching, id)
		}
	}
	return hits
}
