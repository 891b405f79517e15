package server

import (
	"context"
	"time"
)

// TickInterval 由每秒 Tick 数换算的推进间隔
func TickInterval(ticksPerSecond int) time.Duration {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 20
	}
	return time.Second / time.Duration(ticksPerSecond)
}

// Run 房间的 Tick 循环（单线程推进世界），ctx 取消后关闭所有连接并返回
func (r *Room) Run(ctx context.Context) error {
	interval := TickInterval(r.cfg.TicksPerSecond)
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(r.done)
	defer r.shutdown()

	r.log.Infow("room ticker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("room ticker stopped")
			return nil
		case <-ticker.C:
			start := time.Now()
			r.Tick(dt)
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}
}
