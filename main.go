package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridclaim/config"
	"gridclaim/server"
)

// gridclaim 入口：游戏 TCP 监听 + 管理 HTTP（含 /ws 网关），单一模拟协程推进世界
func main() {
	// .env 可选，不存在时只使用环境变量
	_ = godotenv.Load()
	cfg := config.FromEnv()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "game listen address, e.g. :7247")
	flag.StringVar(&cfg.AdminAddr, "admin", cfg.AdminAddr, "admin http address, empty to disable")
	flag.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file path, empty to disable")
	flag.StringVar(&cfg.LogLevel, "level", cfg.LogLevel, "log level: debug/info/warn/error")
	flag.BoolVar(&cfg.LogConsole, "console", cfg.LogConsole, "also log to stderr")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}
	// 使用第三方 zap 日志库写入 app.log（带滚动）
	if err := server.InitLogger(server.LogConfig{File: cfg.LogFile, Level: cfg.LogLevel, Console: cfg.LogConsole}); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	if err := run(cfg); err != nil {
		server.Log.Errorw("exit", "err", err)
		server.SyncLogger()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	world := server.NewWorld(cfg)
	srv := server.NewServer(world, cfg)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	worldErr := make(chan error, 1)
	go func() { worldErr <- world.Run(ctx) }()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
			server.Log.Errorw("game listener stopped", "err", err)
			stop()
		}
	}()

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           server.NewAdminRouter(world, srv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			server.Log.Infof("admin listening on http://%s/", cfg.AdminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				server.Log.Errorw("admin listen", "err", err)
			}
		}()
	}
	server.Log.Infof("gridclaim listening on %s", cfg.Addr)

	var result error
	select {
	case <-ctx.Done():
		server.Log.Info("Shutting down...")
		result = <-worldErr
	case result = <-worldErr:
		// 世界在没有收到信号时退出，只可能是停机
		stop()
	}

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = admin.Shutdown(shutdownCtx)
		cancel()
	}
	_ = srv.Close()
	return result
}
