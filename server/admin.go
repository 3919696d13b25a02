package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridclaim/arena"
)

// NewAdminRouter 管理与监控接口，外加 /ws 网关。
// 不启动任何协程，测试中可直接交给 httptest。
func NewAdminRouter(w *World, s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	a := &adminHandlers{world: w, server: s}
	r.Get("/healthz", a.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/admin", func(r chi.Router) {
		r.Get("/config", a.handleGetConfig)
		r.Post("/config", a.handlePostConfig)
		r.Get("/stats", a.handleStats)
		r.Get("/players", a.handlePlayers)
	})
	r.Get("/debug/arena.png", a.handleArenaPNG)
	if s != nil {
		r.Get("/ws", s.HandleWS)
	}
	return r
}

type adminHandlers struct {
	world  *World
	server *Server
}

// adminConfig 可热更新的运行参数
type adminConfig struct {
	LogLevel   *string `json:"logLevel,omitempty"`
	SlowTickMs *int    `json:"slowTickMs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *adminHandlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.world.done:
		http.Error(w, "world stopped", http.StatusServiceUnavailable)
	default:
		_, _ = w.Write([]byte("ok"))
	}
}

func (a *adminHandlers) currentConfig() adminConfig {
	level := LogLevel()
	ms := int(a.world.SlowTick() / time.Millisecond)
	return adminConfig{LogLevel: &level, SlowTickMs: &ms}
}

// GET /admin/config 返回当前配置
func (a *adminHandlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.currentConfig())
}

// POST /admin/config 以 JSON 载荷更新部分字段
func (a *adminHandlers) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var body adminConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.SlowTickMs != nil && *body.SlowTickMs <= 0 {
		http.Error(w, "slowTickMs must be positive", http.StatusBadRequest)
		return
	}
	if body.LogLevel != nil {
		if err := SetLogLevel(*body.LogLevel); err != nil {
			http.Error(w, "invalid logLevel", http.StatusBadRequest)
			return
		}
	}
	if body.SlowTickMs != nil {
		a.world.SetSlowTick(time.Duration(*body.SlowTickMs) * time.Millisecond)
	}
	cur := a.currentConfig()
	Log.Infow("config updated", "logLevel", *cur.LogLevel, "slowTickMs", *cur.SlowTickMs)
	writeJSON(w, http.StatusOK, cur)
}

// GET /admin/stats 世界运行指标
func (a *adminHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"tick":    a.world.TickSeq(),
		"metrics": a.world.metrics.Snapshot(),
	}
	if a.server != nil {
		payload["sessions"] = a.server.sessions.Len()
		payload["accept"] = a.server.limiter.Stats()
	}
	writeJSON(w, http.StatusOK, payload)
}

// GET /admin/players 当前玩家（在模拟协程上读取）
func (a *adminHandlers) handlePlayers(w http.ResponseWriter, r *http.Request) {
	var players []playerView
	err := a.world.Query(r.Context(), func(ar *arena.Arena) { players = viewPlayers(ar) })
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// GET /debug/arena.png?scale=8 竞技场截图
func (a *adminHandlers) handleArenaPNG(w http.ResponseWriter, r *http.Request) {
	scale := 8
	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 32 {
			http.Error(w, "scale must be in [1,32]", http.StatusBadRequest)
			return
		}
		scale = n
	}
	var view arenaView
	if err := a.world.Query(r.Context(), func(ar *arena.Arena) { view = captureView(ar) }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := renderPNG(w, view, scale); err != nil {
		Log.Warnw("render arena failed", "err", err)
	}
}
