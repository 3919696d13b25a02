package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"gridclaim/config"
	"gridclaim/protocol"
)

// ErrServerClosed Close 之后再调用 Serve
var ErrServerClosed = errors.New("server: closed")

// Server 接入层：TCP 监听与 WebSocket 网关都把连接交给同一个握手状态机
type Server struct {
	world    *World
	sessions *SessionManager
	limiter  *IPRateLimiter
	connOpts protocol.Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	listeners []net.Listener
	wg        sync.WaitGroup
}

func NewServer(w *World, cfg config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		world:    w,
		sessions: NewSessionManager(),
		limiter:  NewIPRateLimiter(RateLimitConfig{PerSecond: cfg.AcceptRPS, Burst: cfg.AcceptBurst}),
		connOpts: protocol.Options{BufferSize: cfg.BufferSize, Timeout: cfg.IOTimeout},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Sessions 当前连接注册表
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Limiter 接入限速器
func (s *Server) Limiter() *IPRateLimiter { return s.limiter }

// Serve 在 ln 上接受连接，直到 ln 被关闭
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()
	Log.Infow("game listener started", "addr", ln.Addr().String())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		if !s.limiter.AllowAddr(nc.RemoteAddr()) {
			RecordConnectionRejected("rate_limit")
			Log.Debugw("connection rate limited", "remote", nc.RemoteAddr().String())
			_ = nc.Close()
			continue
		}
		if !s.track() {
			_ = nc.Close()
			continue
		}
		go func() {
			defer s.wg.Done()
			s.handle(nc)
		}()
	}
}

// track 在服务器未关闭时登记一个连接协程；Close 之后的 Add 与 Wait 不能并发
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// handle 运行一个连接的完整生命周期（阻塞）
func (s *Server) handle(nc net.Conn) {
	sess := newSession(protocol.NewConn(nc, s.connOpts), s.world)
	s.sessions.add(sess)
	defer s.sessions.remove(sess)
	defer sess.close()

	log := Log.With("session", sess.id, "remote", nc.RemoteAddr().String())
	log.Debugw("connection accepted")

	err := sess.serve(s.ctx)
	var rejected *RejectedError
	var v *ViolationError
	switch {
	case errors.As(err, &rejected):
		s.world.metrics.IncRejections()
		RecordConnectionRejected(rejected.Result.String())
		log.Infow("join rejected", "reason", rejected.Result.String())
	case errors.As(err, &v):
		if sess.player == nil {
			s.world.metrics.IncRejections()
		}
		RecordConnectionRejected(rejectReason(err))
		log.Warnw("protocol violation", "state", sess.state.String(), "err", err)
	case errors.Is(err, protocol.ErrClosed), errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
		log.Debugw("session closed", "state", sess.state.String(), "err", err)
	default:
		log.Infow("connection lost", "state", sess.state.String(), "err", err)
	}
}

// Close 停止接入，断开全部连接并等待连接协程退出
func (s *Server) Close() error {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	s.listeners = nil
	s.mu.Unlock()
	s.sessions.CloseAll()
	s.limiter.Stop()
	s.wg.Wait()
	return nil
}
