package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridclaim/arena"
	"gridclaim/client"
	"gridclaim/config"
)

type testStack struct {
	world  *World
	server *Server
	addr   string
}

func startStack(t *testing.T, opts ...func(*config.Config)) *testStack {
	t.Helper()
	cfg := config.Default()
	cfg.IOTimeout = 2 * time.Second
	for _, opt := range opts {
		opt(&cfg)
	}
	w := NewWorld(cfg)
	srv := NewServer(w, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		_ = w.Run(ctx)
	}()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		_ = srv.Close()
		cancel()
		<-worldDone
	})
	return &testStack{world: w, server: srv, addr: ln.Addr().String()}
}

func dial(t *testing.T, addr string, color uint8, name string) (*client.Client, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return client.Dial(ctx, addr, client.Options{Color: color, Username: name, Timeout: 2 * time.Second})
}

func TestServerJoinRejectAndPlay(t *testing.T) {
	st := startStack(t)

	alice, err := dial(t, st.addr, 1, "alice")
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	defer alice.Close()
	if alice.Arena.Width != arena.DefaultWidth || alice.Arena.Height != arena.DefaultHeight {
		t.Fatalf("arena %dx%d", alice.Arena.Width, alice.Arena.Height)
	}
	if len(alice.Arena.Players) != 1 {
		t.Fatalf("first player sees %d players", len(alice.Arena.Players))
	}

	rejects := []struct {
		color uint8
		name  string
		want  string
	}{
		{1, "bob", "Choose another color, please"},
		{2, "alice", "Choose another username, please"},
	}
	for _, tt := range rejects {
		_, err := dial(t, st.addr, tt.color, tt.name)
		var rej *client.RejectedError
		if !errors.As(err, &rej) || rej.Message != tt.want {
			t.Fatalf("dial(%d, %q) err = %v, want rejection %q", tt.color, tt.name, err, tt.want)
		}
	}

	bob, err := dial(t, st.addr, 2, "bob")
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	defer bob.Close()
	if p := bob.Arena.Players[1]; p == nil || p.Username != "alice" {
		t.Fatal("bob's snapshot is missing alice")
	}

	if err := alice.Ready(); err != nil {
		t.Fatal(err)
	}
	// alice 的第一帧包含 bob 的加入与自己的移动
	var sawBob, moved bool
	for i := 0; i < 10 && !(sawBob && moved); i++ {
		d, err := alice.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		for _, p := range d.Added {
			sawBob = sawBob || p.Color == 2
		}
		for _, p := range d.Updated {
			moved = moved || p.Color == 1
		}
	}
	if !sawBob || !moved {
		t.Fatalf("sawBob=%v moved=%v", sawBob, moved)
	}
}

func TestServerClosesOnBadSignature(t *testing.T) {
	st := startStack(t)
	nc, err := net.Dial("tcp", st.addr)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	_, _ = nc.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	_ = nc.SetReadDeadline(time.Now().Add(3 * time.Second))
	if n, err := nc.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("read = %d, %v; want EOF", n, err)
	}
}

func TestServerRejectsOversizedJoin(t *testing.T) {
	st := startStack(t)
	nc, err := net.Dial("tcp", st.addr)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	_ = nc.SetDeadline(time.Now().Add(3 * time.Second))
	_, _ = nc.Write([]byte{0xdf, 0x32, 0xa6, 0x8c})
	echo := make([]byte, 4)
	if _, err := io.ReadFull(nc, echo); err != nil || echo[0] != 0xdf {
		t.Fatalf("echo = %x, %v", echo, err)
	}
	// 长度 1001 远超加入帧上限，服务端不等待负载直接断开
	_, _ = nc.Write([]byte{0x03, 0xe9})
	if _, err := nc.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read err = %v, want EOF", err)
	}
}

func TestServerClosesOnBadDirection(t *testing.T) {
	st := startStack(t)
	c, err := dial(t, st.addr, 9, "cheater")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Ready(); err != nil {
		t.Fatal(err)
	}
	if err := c.Steer(arena.Direction(7)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := c.Next(); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server kept the connection open")
		}
	}
	// 玩家应在下一次 Tick 前被移除
	for time.Now().Before(deadline) {
		var n int
		_ = st.world.Query(context.Background(), func(a *arena.Arena) { n = len(a.Players()) })
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("player not removed after violation")
}

// waitPlayers 轮询直到竞技场里剩下 n 名玩家且连接注册表同步
func waitPlayers(t *testing.T, st *testStack, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var got int
		_ = st.world.Query(context.Background(), func(a *arena.Arena) { got = len(a.Players()) })
		if got == n && st.server.Sessions().Len() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("players/sessions did not settle at %d", n)
}

func shortTimeout(d time.Duration) func(*config.Config) {
	return func(c *config.Config) { c.IOTimeout = d }
}

func TestServerDropsSilentPlayer(t *testing.T) {
	st := startStack(t, shortTimeout(200*time.Millisecond))
	c, err := dial(t, st.addr, 4, "silent")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Ready(); err != nil {
		t.Fatal(err)
	}

	// 只读不写：服务端在读超时后断开
	deadline := time.Now().Add(3 * time.Second)
	frames := 0
	for {
		if _, err := c.Next(); err != nil {
			break
		}
		frames++
		if time.Now().After(deadline) {
			t.Fatalf("still connected after %d frames", frames)
		}
	}
	waitPlayers(t, st, 0)
}

func TestServerKeepsEchoingPlayer(t *testing.T) {
	st := startStack(t, shortTimeout(150*time.Millisecond))
	c, err := dial(t, st.addr, 6, "echo")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Ready(); err != nil {
		t.Fatal(err)
	}

	// 三倍于读超时的时长，仍短于从出生点撞到边界所需的时间
	until := time.Now().Add(450 * time.Millisecond)
	for time.Now().Before(until) {
		if _, err := c.Step(); err != nil {
			t.Fatalf("echoing client dropped: %v", err)
		}
	}
	waitPlayers(t, st, 1)
}

func TestServerRefusesAfterClose(t *testing.T) {
	st := startStack(t)
	ts := httptest.NewServer(NewAdminRouter(st.world, st.server))
	defer ts.Close()
	if err := st.server.Close(); err != nil {
		t.Fatal(err)
	}

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatal("upgrade succeeded on a closed server")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp = %v, want 503", resp)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.server.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("Serve after Close = %v", err)
	}
	if _, err := ln.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("listener should be closed, Accept = %v", err)
	}
}

func TestWebSocketGateway(t *testing.T) {
	st := startStack(t)
	ts := httptest.NewServer(NewAdminRouter(st.world, st.server))
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.Handshake(&wsConn{ws: ws}, client.Options{Color: 5, Username: "browser", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("handshake over websocket: %v", err)
	}
	defer c.Close()
	if err := c.Ready(); err != nil {
		t.Fatal(err)
	}
	d, err := c.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(d.Updated) == 0 {
		t.Fatal("first delta over websocket carries no movement")
	}
}
