package server

import (
	"context"

	"github.com/google/uuid"

	"gridclaim/arena"
	"gridclaim/protocol"
)

// handshakeState 连接所处的协议阶段
type handshakeState int

const (
	stateAwaitSignature handshakeState = iota
	stateAwaitJoin
	stateAwaitReady
	statePlaying
)

func (s handshakeState) String() string {
	switch s {
	case stateAwaitSignature:
		return "await_signature"
	case stateAwaitJoin:
		return "await_join"
	case stateAwaitReady:
		return "await_ready"
	case statePlaying:
		return "playing"
	}
	return "unknown"
}

// RejectedError 加入被竞技场拒绝（颜色或用户名重复）
type RejectedError struct {
	Result arena.AddResult
}

func (e *RejectedError) Error() string { return "join rejected: " + e.Result.String() }

// session 一个客户端连接：读协程驱动握手与输入，写协程负责发送增量
type session struct {
	id    string
	conn  *protocol.Conn
	world *World
	state handshakeState

	// 由模拟协程在加入成功时设置，此后只读
	player *arena.Player
	// 模拟协程编码完一帧后通知写协程
	flush chan struct{}
}

func newSession(conn *protocol.Conn, w *World) *session {
	return &session{
		id:    uuid.NewString(),
		conn:  conn,
		world: w,
		flush: make(chan struct{}, 1),
	}
}

// serve 在连接协程上运行整个连接生命周期，返回结束原因
func (s *session) serve(ctx context.Context) error {
	c := s.conn
	if err := c.Read(4); err != nil {
		return err
	}
	for {
		switch s.state {
		case stateAwaitSignature:
			if sig := c.In.Uint32(); sig != protocol.Signature {
				return violation(reasonBadSignature, "%#08x", sig)
			}
			c.Out.PutUint32(protocol.Signature)
			if err := c.FlushThenRead(2); err != nil {
				return err
			}
			s.state = stateAwaitJoin

		case stateAwaitJoin:
			length := int(c.In.Uint16())
			if !validJoinLength(length) {
				return violation(reasonMalformedJoin, "frame length %d", length)
			}
			if err := c.Read(length); err != nil {
				return err
			}
			color, username, err := parseJoin(length, &c.In)
			if err != nil {
				return err
			}
			res, err := s.world.Join(ctx, s, color, username)
			if err != nil {
				return err
			}
			if res != arena.Success {
				if err := encodeReject(&c.Out, res); err != nil {
					return err
				}
				if err := c.Flush(); err != nil {
					return err
				}
				return &RejectedError{Result: res}
			}
			// 快照已由模拟协程写入 Out，Writing 仍被持有
			if err := c.FlushThenRead(1); err != nil {
				return err
			}
			go s.writePump()
			s.player.Writing.Store(false)
			s.state = stateAwaitReady

		case stateAwaitReady:
			c.In.Uint8()
			if err := s.world.Ready(s); err != nil {
				return err
			}
			s.state = statePlaying

		case statePlaying:
			return s.readLoop()
		}
	}
}

// readLoop 每个方向输入 1 字节；超出 0..3 视为违规。
// 读沿用连接超时：客户端每收到一帧回送一次方向，超时未收到任何字节即视为失联。
func (s *session) readLoop() error {
	for {
		if err := s.conn.Read(1); err != nil {
			return err
		}
		d := arena.Direction(s.conn.In.Uint8())
		if !d.Valid() {
			return violation(reasonBadDirection, "direction byte %d", d)
		}
		s.world.OnInput(s, d)
	}
}

// writePump 独立协程：等待模拟协程的通知，把写缓冲刷到连接上，然后释放写标记。
// 刷新失败时保持写标记，模拟协程不会再为该玩家编码。
func (s *session) writePump() {
	for {
		select {
		case <-s.flush:
			n := s.conn.Out.Len()
			if err := s.conn.Flush(); err != nil {
				Log.Debugw("flush failed", "session", s.id, "err", err)
				s.world.RequestLeave(s)
				return
			}
			s.world.metrics.AddFrame(n)
			RecordFrame(n)
			s.player.Writing.Store(false)
		case <-s.conn.Done():
			return
		}
	}
}

// close 关闭连接；已加入的玩家交给模拟协程移除
func (s *session) close() {
	_ = s.conn.Close()
	if s.player != nil {
		s.world.RequestLeave(s)
	}
}
