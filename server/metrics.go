package server

import (
	"sync/atomic"
)

// WorldMetrics 记录模拟与连接的关键计数（用于管理接口与调试）
type WorldMetrics struct {
	TickCount         int64 // 统计的 Tick 次数
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
	SlowTicks         int64 // 超过告警阈值的 Tick 数
	InputsAccepted    int64 // 被接受的方向输入数
	ChanFullDiscarded int64 // 因输入通道满被丢弃的输入数
	Joins             int64 // 成功加入的玩家数
	Rejections        int64 // 被拒绝或因协议错误关闭的握手数
	Deaths            int64 // 死亡玩家数
	Leaves            int64 // 因连接断开移除的玩家数
	FramesSent        int64 // 已发送的增量帧数
	BytesSent         int64 // 已发送的增量字节数
}

func (m *WorldMetrics) IncAccepted() { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *WorldMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *WorldMetrics) IncJoins() { atomic.AddInt64(&m.Joins, 1) }
func (m *WorldMetrics) IncRejections() { atomic.AddInt64(&m.Rejections, 1) }
func (m *WorldMetrics) IncDeaths() { atomic.AddInt64(&m.Deaths, 1) }
func (m *WorldMetrics) IncLeaves() { atomic.AddInt64(&m.Leaves, 1) }
func (m *WorldMetrics) IncSlowTicks() { atomic.AddInt64(&m.SlowTicks, 1) }
func (m *WorldMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}
func (m *WorldMetrics) AddFrame(bytes int) {
	atomic.AddInt64(&m.FramesSent, 1)
	atomic.AddInt64(&m.BytesSent, int64(bytes))
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *WorldMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"slow_ticks":          atomic.LoadInt64(&m.SlowTicks),
		"inputs_accepted":     atomic.LoadInt64(&m.InputsAccepted),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"joins":               atomic.LoadInt64(&m.Joins),
		"rejections":          atomic.LoadInt64(&m.Rejections),
		"deaths":              atomic.LoadInt64(&m.Deaths),
		"leaves":              atomic.LoadInt64(&m.Leaves),
		"frames_sent":         atomic.LoadInt64(&m.FramesSent),
		"bytes_sent":          atomic.LoadInt64(&m.BytesSent),
		"avg_tick_ms":         avgMs,
	}
}
