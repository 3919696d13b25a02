// Package config 集中管理服务端配置：默认值 + 环境变量覆盖。
// 命令行参数在 main 中最后覆盖。
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gridclaim/arena"
	"gridclaim/protocol"
)

// Config 服务端全部配置
type Config struct {
	// Addr 游戏 TCP 监听地址
	Addr string
	// AdminAddr 管理/监控 HTTP 监听地址，为空则不启动
	AdminAddr string

	ArenaWidth  int
	ArenaHeight int

	TickInterval time.Duration
	// SlowTick 超过该耗时的 Tick 记为告警，默认 TickInterval 的一半
	SlowTick time.Duration

	IOTimeout  time.Duration
	BufferSize int

	// 每个 IP 的新连接速率限制
	AcceptRPS   float64
	AcceptBurst int

	LogFile    string
	LogLevel   string
	LogConsole bool
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Addr:         ":7247",
		AdminAddr:    "127.0.0.1:8080",
		ArenaWidth:   arena.DefaultWidth,
		ArenaHeight:  arena.DefaultHeight,
		TickInterval: 20 * time.Millisecond, // 50 Hz
		SlowTick:     10 * time.Millisecond,
		IOTimeout:    protocol.DefaultTimeout,
		BufferSize:   protocol.DefaultBufferSize,
		AcceptRPS:    5,
		AcceptBurst:  10,
		LogFile:      "app.log",
		LogLevel:     "info",
	}
}

// FromEnv 在默认配置上应用环境变量覆盖
func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("GRIDCLAIM_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("GRIDCLAIM_ADMIN_ADDR"); ok {
		cfg.AdminAddr = v
	}
	if w := getEnvInt("GRIDCLAIM_ARENA_WIDTH", 0); w > 0 {
		cfg.ArenaWidth = w
	}
	if h := getEnvInt("GRIDCLAIM_ARENA_HEIGHT", 0); h > 0 {
		cfg.ArenaHeight = h
	}
	if ms := getEnvInt("GRIDCLAIM_TICK_MS", 0); ms > 0 {
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
		cfg.SlowTick = cfg.TickInterval / 2
	}
	if ms := getEnvInt("GRIDCLAIM_SLOW_TICK_MS", 0); ms > 0 {
		cfg.SlowTick = time.Duration(ms) * time.Millisecond
	}
	if ms := getEnvInt("GRIDCLAIM_IO_TIMEOUT_MS", 0); ms > 0 {
		cfg.IOTimeout = time.Duration(ms) * time.Millisecond
	}
	if rps := getEnvFloat("GRIDCLAIM_ACCEPT_RPS", 0); rps > 0 {
		cfg.AcceptRPS = rps
	}
	if b := getEnvInt("GRIDCLAIM_ACCEPT_BURST", 0); b > 0 {
		cfg.AcceptBurst = b
	}
	if v, ok := os.LookupEnv("GRIDCLAIM_LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v := os.Getenv("GRIDCLAIM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if os.Getenv("GRIDCLAIM_LOG_CONSOLE") == "true" {
		cfg.LogConsole = true
	}

	return cfg
}

// Validate 检查配置是否可用
func (c Config) Validate() error {
	var errs []error
	// 坐标在线上是 u8，出生点需要距离边界 3 格
	if c.ArenaWidth < 8 || c.ArenaWidth > 255 {
		errs = append(errs, fmt.Errorf("arena width %d out of range [8,255]", c.ArenaWidth))
	}
	if c.ArenaHeight < 8 || c.ArenaHeight > 255 {
		errs = append(errs, fmt.Errorf("arena height %d out of range [8,255]", c.ArenaHeight))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if c.IOTimeout <= 0 {
		errs = append(errs, errors.New("io timeout must be positive"))
	}
	frames := []struct {
		name string
		size int
	}{
		{"snapshot", SnapshotSize(c.ArenaWidth, c.ArenaHeight, 255)},
		{"delta", DeltaSize(c.ArenaWidth, c.ArenaHeight, 255)},
	}
	for _, f := range frames {
		if c.BufferSize < f.size {
			errs = append(errs, fmt.Errorf("buffer size %d cannot hold a full %s (%d bytes)", c.BufferSize, f.name, f.size))
		} else if f.size-2 > math.MaxUint16 {
			errs = append(errs, fmt.Errorf("%s of %d bytes does not fit a u16 length prefix", f.name, f.size))
		}
	}
	if c.AcceptRPS <= 0 || c.AcceptBurst <= 0 {
		errs = append(errs, errors.New("accept rate and burst must be positive"))
	}
	return errors.Join(errs...)
}

// SnapshotSize 完整握手回复在最坏情况（players 名玩家、用户名最长）下的字节数
func SnapshotSize(width, height, players int) int {
	const (
		record  = 6        // color + cellX + fracX + cellY + fracY + direction
		maxName = 2 + 16*2 // u16 长度 + 16 个 UTF-16 码元
	)
	return 2 + 2 + 2 + 2*width*height + 5 + 4 + (players-1)*(maxName+record)
}

// DeltaSize 一帧增量在最坏情况下的字节数：所有玩家同时出现在新增、更新、移除列表里，
// 且每个格子的领地和轨迹都被标脏
func DeltaSize(width, height, players int) int {
	const (
		record  = 6
		maxName = 2 + 16*2
	)
	cells := width * height
	bits := 2 + (cells+7)/8 + cells // u16 字节数 + 位图 + 每个置位一字节
	return 2 +
		4 + players*(maxName+record) +
		4 + players*record +
		2*bits +
		4 + players
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
