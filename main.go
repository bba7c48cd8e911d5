package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trailarena/backend"
	"trailarena/server"
)

// trailarena 入口：读取配置，启动 HTTP + WebSocket 服务，优雅退出
func main() {
	var (
		addr    string
		envFile string
	)
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides ADDR)")
	flag.StringVar(&envFile, "env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := server.LoadConfig(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	// zap 日志写入文件（lumberjack 滚动）
	if err := server.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger()

	var store backend.Store = backend.Nop{}
	if cfg.BackendBaseURL != "" {
		store = backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, backend.WithTimeout(cfg.BackendTimeout))
	} else {
		server.Log.Warn("BACKEND_INTERNAL_BASE_URL not set; match results will not be persisted")
	}
	rm := server.NewRoomManager(store, server.WithBackendTimeout(cfg.BackendTimeout))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewMux(rm, cfg.SendQueueSize, cfg.InternalAPIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		server.Log.Infof("trailarena listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnf("http shutdown: %v", err)
	}
	if err := rm.Shutdown(ctx); err != nil {
		server.Log.Warnf("room shutdown: %v", err)
	}
}
