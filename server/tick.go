package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Run 是唯一的模拟协程：按固定间隔 Tick，Tick 之间处理加入请求与只读查询。
// ctx 取消时返回 nil；Tick 中发生 panic 时停止并返回 ErrHalted。
func (w *World) Run(ctx context.Context) error {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	Log.Infow("world started", "width", w.arena.Width(), "height", w.arena.Height(), "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			Log.Infow("world stopped", "ticks", w.TickSeq(), "players", len(w.arena.Players()))
			return nil
		case req := <-w.joinChan:
			if err := w.guard("join", func() { w.handleJoin(req) }); err != nil {
				return err
			}
		case q := <-w.queryChan:
			if err := w.guard("query", func() { q.fn(w.arena); close(q.done) }); err != nil {
				return err
			}
		case <-ticker.C:
			// 核心循环：处理输入 → 更新世界 → 广播结果
			if err := w.guard("tick", w.tick); err != nil {
				return err
			}
		}
	}
}

func (w *World) tick() {
	start := time.Now()
	w.ProcessInputs()
	alive := w.UpdateWorld()
	w.BroadcastDelta(alive)
	elapsed := time.Since(start)

	seq := w.tickSeq.Add(1)
	w.metrics.AddTick(elapsed.Nanoseconds())
	RecordTick(elapsed)
	if threshold := w.SlowTick(); elapsed > threshold {
		w.metrics.IncSlowTicks()
		RecordSlowTick()
		Log.Warnw("slow tick", "tick", seq, "elapsed", elapsed, "threshold", threshold,
			"players", len(w.arena.Players()))
	}
}

// guard 模拟协程上的 panic 意味着竞技场状态可能已不一致，记录后停止世界
func (w *World) guard(stage string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			Log.Errorw("world halted", "stage", stage, "tick", w.TickSeq(), "panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s: %v", ErrHalted, stage, r)
		}
	}()
	fn()
	return nil
}
