package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"heistarena/lobby"
	"heistarena/server"
)

// HeistArena 入口：启动游戏 WebSocket、大厅服务与管理接口
func main() {
	var (
		addr       string
		configPath string
	)
	flag.StringVar(&addr, "addr", "", "server listen address, overrides config, e.g. :8080")
	flag.StringVar(&configPath, "config", "config/heistarena.yaml", "path to YAML config")
	flag.Parse()

	if err := run(configPath, addr); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}

	// zap 日志写入滚动文件
	log, err := server.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer server.SyncLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder server.Recorder = server.NopRecorder{}
	var journal *server.SQLiteJournal
	if cfg.Journal.Path != "" {
		journal, err = server.OpenJournal(cfg.Journal.Path, cfg.Journal.Buffer, log)
		if err != nil {
			return err
		}
		recorder = journal
	}

	rm := server.NewRoomManager(ctx, cfg.Room, log, recorder)
	// 先预创建一个默认房间，便于快速试跑
	_ = rm.GetOrCreateRoom(server.DefaultRoomID)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rm.HandleWS)
	mux.HandleFunc("/admin/config", rm.HandleAdminConfig)
	mux.HandleFunc("/admin/world", rm.HandleAdminWorld)
	mux.HandleFunc("/admin/heist", rm.HandleStartHeist)
	mux.HandleFunc("/metrics", rm.HandleMetrics)
	if journal != nil {
		mux.HandleFunc("/admin/journal", server.HandleJournal(journal))
	}
	if cfg.Lobby.Enabled {
		lobby.NewHub(cfg.Lobby.MaxMembers, log.Named("lobby")).Register(mux)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("HeistArena listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	// 优雅退出（Ctrl+C）
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	rm.Wait()
	if journal != nil {
		if cerr := journal.Close(); cerr != nil {
			log.Warnw("journal close failed", "err", cerr)
		}
	}
	return err
}
