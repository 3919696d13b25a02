package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"gridclaim/arena"
	"gridclaim/config"
)

var (
	// ErrHalted 模拟中出现不可恢复的错误，World 已停止
	ErrHalted = errors.New("world halted")
	// ErrStopped World 已退出，不再接受请求
	ErrStopped = errors.New("world stopped")
)

// World 单一权威世界：竞技场状态只在 Run 所在的协程上读写。
// 连接协程只通过通道提交意图（加入、方向、就绪、离开）。
type World struct {
	arena    *arena.Arena
	sessions map[*arena.Player]*session

	inputChan chan Input
	leaveChan chan *session
	joinChan  chan joinRequest
	queryChan chan query

	interval time.Duration
	slowTick atomic.Int64 // ns

	tickSeq atomic.Uint64
	metrics *WorldMetrics
	done    chan struct{}
}

// NewWorld 根据配置创建世界（尚未开始 Tick）
func NewWorld(cfg config.Config) *World {
	return newWorld(cfg, arena.New(cfg.ArenaWidth, cfg.ArenaHeight, nil))
}

func newWorld(cfg config.Config, a *arena.Arena) *World {
	w := &World{
		arena:     a,
		sessions:  make(map[*arena.Player]*session),
		inputChan: make(chan Input, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		leaveChan: make(chan *session, 64),
		joinChan:  make(chan joinRequest),
		queryChan: make(chan query),
		interval:  cfg.TickInterval,
		metrics:   &WorldMetrics{},
		done:      make(chan struct{}),
	}
	slow := cfg.SlowTick
	if slow <= 0 {
		slow = cfg.TickInterval / 2
	}
	w.slowTick.Store(int64(slow))
	return w
}

// Metrics 运行指标
func (w *World) Metrics() *WorldMetrics { return w.metrics }

// TickSeq 已完成的 Tick 数
func (w *World) TickSeq() uint64 { return w.tickSeq.Load() }

// SetSlowTick 运行时调整慢 Tick 告警阈值
func (w *World) SetSlowTick(d time.Duration) { w.slowTick.Store(int64(d)) }

// SlowTick 当前慢 Tick 告警阈值
func (w *World) SlowTick() time.Duration { return time.Duration(w.slowTick.Load()) }

// Join 在模拟协程上尝试注册玩家；成功时握手回复已写入 sess 的写缓冲区
func (w *World) Join(ctx context.Context, sess *session, color uint8, username string) (arena.AddResult, error) {
	req := joinRequest{sess: sess, color: color, username: username, reply: make(chan arena.AddResult, 1)}
	select {
	case w.joinChan <- req:
	case <-w.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-w.done:
		return 0, ErrStopped
	}
}

// OnInput 入站方向输入（不立即改变方向），等下一次 Tick 处理
func (w *World) OnInput(sess *session, dir arena.Direction) {
	select {
	case w.inputChan <- Input{sess: sess, Kind: inputDirection, Direction: dir}:
	default:
		// 丢弃：为了实时性，避免背压影响世界推进
		w.metrics.IncChanFullDiscarded()
	}
}

// Ready 就绪信号必须送达，阻塞直到被接收或世界退出
func (w *World) Ready(sess *session) error {
	select {
	case w.inputChan <- Input{sess: sess, Kind: inputReady}:
		return nil
	case <-w.done:
		return ErrStopped
	}
}

// RequestLeave 请求在模拟协程中移除该连接的玩家，避免并发改动世界状态
func (w *World) RequestLeave(sess *session) {
	select {
	case w.leaveChan <- sess:
	case <-w.done:
	}
}

// Query 在模拟协程上执行只读访问，fn 中不得保留 arena 的引用
func (w *World) Query(ctx context.Context, fn func(a *arena.Arena)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case w.queryChan <- q:
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-q.done:
		return nil
	case <-w.done:
		return ErrStopped
	}
}

func (w *World) handleJoin(req joinRequest) {
	spawn, dir := w.arena.RandomSpawn()
	p := w.arena.NewPlayer(req.color, req.username, spawn, dir)
	res := w.arena.AddPlayer(p)
	if res == arena.Success {
		// 握手回复由连接协程发送，发送完之前不允许写入增量
		p.Writing.Store(true)
		req.sess.player = p
		w.sessions[p] = req.sess
		if err := encodeJoinAccepted(&req.sess.conn.Out, w.arena, p); err != nil {
			Log.Errorw("encode snapshot failed", "session", req.sess.id, "err", err)
		}
		// 快照已包含此前的全部状态
		p.ClearDiff()
		w.metrics.IncJoins()
		UpdatePlayerCount(len(w.arena.Players()))
		Log.Infow("player joined", "session", req.sess.id, "color", req.color, "username", req.username,
			"x", spawn.X, "y", spawn.Y, "direction", dir.String())
	}
	req.reply <- res
}

// ProcessInputs 处理当前帧的所有离开与输入意图（非阻塞 drain）
func (w *World) ProcessInputs() {
	for {
		select {
		case sess := <-w.leaveChan:
			if p := sess.player; p != nil && w.sessions[p] == sess {
				w.metrics.IncLeaves()
				w.drop(p, "connection lost")
			}
		case in := <-w.inputChan:
			p := in.sess.player
			if p == nil || w.sessions[p] != in.sess {
				continue
			}
			switch in.Kind {
			case inputDirection:
				p.NextDirection(in.Direction)
				w.metrics.IncAccepted()
			case inputReady:
				p.SetMoving()
			}
		default:
			return
		}
	}
}

// UpdateWorld 推进所有移动中的玩家；死亡玩家在遍历结束后统一移除
func (w *World) UpdateWorld() []*arena.Player {
	res := w.arena.Tick()
	for _, p := range res.Dead {
		cause := p.DeathCause().String()
		w.metrics.IncDeaths()
		RecordDeath(cause)
		w.drop(p, cause)
	}
	return res.Alive
}

// BroadcastDelta 为每个存活的移动玩家编码并触发一次增量发送（若没有发送正在进行）
func (w *World) BroadcastDelta(alive []*arena.Player) {
	for _, p := range alive {
		sess, ok := w.sessions[p]
		if !ok {
			continue
		}
		if !p.Writing.CompareAndSwap(false, true) {
			continue
		}
		if err := encodeDelta(&sess.conn.Out, w.arena, p); err != nil {
			Log.Errorw("encode delta failed", "session", sess.id, "color", p.Color(), "err", err)
			w.drop(p, "encode failed")
			continue
		}
		sess.flush <- struct{}{}
	}
}

// drop 注销玩家并关闭其连接
func (w *World) drop(p *arena.Player, reason string) {
	sess := w.sessions[p]
	delete(w.sessions, p)
	w.arena.RemovePlayer(p)
	UpdatePlayerCount(len(w.arena.Players()))
	if sess != nil {
		Log.Infow("player removed", "session", sess.id, "color", p.Color(), "username", p.Username(),
			"reason", reason, "territory", p.OwnedCells())
		_ = sess.conn.Close()
	}
}
