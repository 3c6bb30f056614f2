package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "worldsync.dev/internal/persistence/log"
	"worldsync.dev/internal/sim/tuning"
	"worldsync.dev/internal/sim/world"
	"worldsync.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session/tick index")
		disableLog = flag.Bool("disable_log", false, "disable the compressed tick/session logs")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

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

	_ = os.MkdirAll(*dataDir, 0o755)

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	w, err := world.New(world.WorldConfig{
		TickRateHz:  tune.TickRateHz,
		SpawnPoints: tune.SpawnTransforms(),
	}, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	tickLoggers := multiTickLogger{}
	sessionLoggers := multiSessionLogger{}
	if !*disableLog {
		tickLog := persistlog.NewTickLogger(*dataDir)
		sessionLog := persistlog.NewSessionLogger(*dataDir)
		defer tickLog.Close()
		defer sessionLog.Close()
		tickLoggers = append(tickLoggers, tickLog)
		sessionLoggers = append(sessionLoggers, sessionLog)
	}
	if idx != nil {
		tickLoggers = append(tickLoggers, idx)
		sessionLoggers = append(sessionLoggers, idx)
	}
	if len(tickLoggers) > 0 {
		w.SetTickLogger(tickLoggers)
		w.SetSessionLogger(sessionLoggers)
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(w, logger, ws.Options{
		SendQueue:        tune.SendQueue,
		UpdatesPerSecond: tune.RateLimits.UpdatesPerSecond,
		UpdateBurst:      tune.RateLimits.UpdateBurst,
	})
	mux := newMux(w, wsSrv, idx, muxOptions{
		EnableAdmin: envBool("WS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		Logger:      logger,
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

	logger.Printf("listening on %s tick_rate=%d spawns=%d", *addr, tune.TickRateHz, len(tune.SpawnPoints))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	for _, l := range m {
		_ = l.WriteTick(entry)
	}
	return nil
}

type multiSessionLogger []world.SessionLogger

func (m multiSessionLogger) WriteSession(entry world.SessionEntry) error {
	for _, l := range m {
		_ = l.WriteSession(entry)
	}
	return nil
}
