package server

import "math"

// PlayerID 表示玩家唯一标识
type PlayerID string

// Axis 二维输入轴（摇杆 / 鼠标增量），取值一般在 [-1, 1]
type Axis struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player 房间内的玩家实体（服务端权威状态）
type Player struct {
	ID    PlayerID
	NetID NetID

	Move Axis // 当前移动意图，每个 Tick 积分
	Look Axis // 当前视角意图

	Conn *ClientConn // 网络连接的发送端（写协程）
}

const maxPitch = 90.0

// integrate 按意图推进一个 Tick：先转向再沿自身朝向平移
func (p *Player) integrate(t Transform, speed, sensitivity, dt float64) Transform {
	t.Yaw = math.Mod(t.Yaw+p.Look.X*sensitivity*dt, 360)
	t.Pitch += -p.Look.Y * sensitivity * dt
	if t.Pitch > maxPitch {
		t.Pitch = maxPitch
	}
	if t.Pitch < -maxPitch {
		t.Pitch = -maxPitch
	}

	if p.Move.X == 0 && p.Move.Y == 0 {
		return t
	}
	rad := t.Yaw * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	// 本地坐标 (x, 0, y) 旋转到世界坐标
	local := Vec3{X: p.Move.X, Z: p.Move.Y}
	world := Vec3{
		X: local.X*cos + local.Z*sin,
		Z: -local.X*sin + local.Z*cos,
	}
	t.Position = t.Position.Add(world.Scale(speed * dt))
	return t
}
