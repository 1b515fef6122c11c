package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	kotel "kartoffels.dev/internal/platform/otel"
	"kartoffels.dev/internal/sim/botvm"
	"kartoffels.dev/internal/sim/multiworld"
	"kartoffels.dev/internal/sim/tuning"
	"kartoffels.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "path to worlds.yaml (default: <configs>/worlds.yaml; a single arena when missing)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory (empty: worlds are never saved)")
		disableDB  = flag.Bool("disable_db", false, "disable the save/event index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	env, err := loadServerEnv()
	if err != nil {
		logger.Fatalf("load env: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	wp := strings.TrimSpace(*worldsPath)
	if wp == "" {
		wp = filepath.Join(*configDir, "worlds.yaml")
		if _, err := os.Stat(wp); err != nil {
			wp = ""
		}
	}
	cfg, err := multiworld.Load(wp)
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := kotel.Setup(ctx, "kartoffels-server")
	if err != nil {
		logger.Fatalf("otel: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = shutdownTracing(ctx2)
	}()

	// Optional read-model index; world files stay the source of truth.
	idx, err := openRuntimeIndex(env, *dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	opts := multiworld.Options{
		DataDir:  *dataDir,
		Tuning:   tune,
		Runtimes: botvm.Factory{MaxProgram: tune.MaxProgramOps},
		Logger:   log.New(os.Stdout, "[worlds] ", log.LstdFlags|log.Lmicroseconds),
		Journal:  env.JournalEnabled && *dataDir != "",
	}
	if idx != nil {
		opts.Indexer = idx
		opts.Mirror = idx
	}

	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	mgr, err := multiworld.Open(openCtx, cfg, opts)
	openCancel()
	if err != nil {
		logger.Fatalf("open worlds: %v", err)
	}
	for _, id := range mgr.WorldIDs() {
		rt := mgr.Runtime(id)
		logger.Printf("world %s: resumed=%v path=%s", id, rt.Resumed, rt.Path)
	}

	wsSrv := ws.NewServer(mgr, tune, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	mux := buildMux(mgr, wsSrv, idx, logger, muxOptions{
		Admin: env.adminEnabled(),
		Pprof: env.EnablePprof,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("ListenAndServe: %v", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := mgr.Close(closeCtx); err != nil {
		logger.Printf("close worlds: %v", err)
	}
	logger.Printf("bye")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
