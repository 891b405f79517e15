package server

import (
	"math/rand"

	"go.uber.org/zap"
)

// SpawnSlot 出生点：注册后不可变
type SpawnSlot struct {
	Index     int
	Transform Transform
}

// SpawnCoordinator 轮询分配玩家出生点。
// 只在房间 Tick 线程中调用，不加锁
type SpawnCoordinator struct {
	slots []SpawnSlot
	next  int
	log   *zap.SugaredLogger
}

func NewSpawnCoordinator(points []Transform, log *zap.SugaredLogger) *SpawnCoordinator {
	slots := make([]SpawnSlot, len(points))
	for i, t := range points {
		slots[i] = SpawnSlot{Index: i, Transform: t}
	}
	return &SpawnCoordinator{slots: slots, log: log}
}

// Shuffle 打乱出生点顺序（房间启动时调用一次），并重置游标
func (c *SpawnCoordinator) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(c.slots), func(i, j int) {
		c.slots[i], c.slots[j] = c.slots[j], c.slots[i]
	})
	c.next = 0
}

// Next 返回游标处的出生点并前移；没有出生点时记录错误并返回 false
func (c *SpawnCoordinator) Next() (Transform, bool) {
	if len(c.slots) == 0 {
		c.log.Error("no spawn points configured; players will spawn in the void")
		return Transform{}, false
	}
	slot := c.slots[c.next]
	c.next = (c.next + 1) % len(c.slots)
	return slot.Transform, true
}

// Len 出生点数量
func (c *SpawnCoordinator) Len() int { return len(c.slots) }

// Slots 当前顺序的只读副本
func (c *SpawnCoordinator) Slots() []SpawnSlot {
	out := make([]SpawnSlot, len(c.slots))
	copy(out, c.slots)
	return out
}
