package server

// InputKind 客户端请求类型
type InputKind string

const (
	InputMove InputKind = "move"
	InputLook InputKind = "look"
	InputHit  InputKind = "hit"
	InputDoor InputKind = "door"
)

// Input 客户端输入（意图），由服务端在 Tick 中解释并驱动世界状态
type Input struct {
	PlayerID PlayerID
	Kind     InputKind
	Axis     Axis
	Target   NetID
	Damage   float64
	Seq      int64 // 客户端本地序列号，用于去重
}

// InputMessage 入站 JSON 结构（WebSocket 文本消息）
// 示例：{"type":"move","x":0,"y":1}  {"type":"hit","netId":3,"damage":25}  {"type":"door","netId":5}
type InputMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	NetID  NetID   `json:"netId,omitempty"`
	Damage float64 `json:"damage,omitempty"`
	Seq    int64   `json:"seq,omitempty"`
}

// ToInput 校验消息类型并转换；未知类型返回 false
func (m InputMessage) ToInput(pid PlayerID) (Input, bool) {
	in := Input{PlayerID: pid, Seq: m.Seq}
	switch InputKind(m.Type) {
	case InputMove:
		in.Kind = InputMove
		in.Axis = clampAxis(Axis{X: m.X, Y: m.Y})
	case InputLook:
		in.Kind = InputLook
		in.Axis = Axis{X: m.X, Y: m.Y}
	case InputHit:
		in.Kind = InputHit
		in.Target = m.NetID
		in.Damage = m.Damage
	case InputDoor:
		in.Kind = InputDoor
		in.Target = m.NetID
	default:
		return Input{}, false
	}
	return in, true
}

func clampAxis(a Axis) Axis {
	clamp := func(v float64) float64 {
		if v > 1 {
			return 1
		}
		if v < -1 {
			return -1
		}
		return v
	}
	return Axis{X: clamp(a.X), Y: clamp(a.Y)}
}
