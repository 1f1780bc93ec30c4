package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"confprog/internal/accounts"
	"confprog/internal/auth"
	"confprog/internal/config"
	appLog "confprog/internal/log"
	"confprog/internal/metrics"
	"confprog/internal/schedule"
	"confprog/internal/source"
	"confprog/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	source     string
	debug      bool
}

func main() {
	_ = godotenv.Load()

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	defer appLog.Sync()

	appLog.Info("confprog starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.source != "" {
		conf.Schedule.Source = flags.source
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"locale", conf.Locale,
		"database", conf.DatabasePath,
		"schedule_refresh", conf.Schedule.Refresh,
		"schedule_watch", conf.Schedule.Watch,
		"slot_days", len(conf.Filters.TimeSlots),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	db, err := accounts.Open(ctx, conf.DatabasePath)
	if err != nil {
		appLog.Error("failed to open database", err, "path", conf.DatabasePath)
		os.Exit(1)
	}
	defer db.Close()

	secret := conf.Session.Secret
	if secret == "" {
		secret = randomSecret()
		appLog.Info("no session secret configured; sessions end on restart")
	}
	tokens, err := auth.NewIssuer(secret, conf.Session.TTL)
	if err != nil {
		appLog.Error("failed to set up sessions", err)
		os.Exit(1)
	}

	m := metrics.NewCollector("confprog")

	catalog := source.NewCatalog(
		source.NewFetcher(conf.Schedule.CacheDir),
		conf.Schedule.Source,
		schedule.Types{Talk: conf.Types.Talk, Poster: conf.Types.Poster},
		conf.Locale,
	)
	reload := func() {
		if err := catalog.Reload(ctx); err != nil {
			m.CountReload(metrics.Failed)
			return
		}
		m.CountReload(metrics.OK)
	}
	reload()
	if catalog.LastError() != nil {
		appLog.Error("initial program load failed; serving empty state until next refresh", catalog.LastError())
	}

	var sched *cron.Cron
	if conf.Schedule.Refresh != "" && source.IsRemote(conf.Schedule.Source) {
		sched = cron.New()
		if _, err := sched.AddFunc(conf.Schedule.Refresh, reload); err != nil {
			appLog.Error("invalid refresh schedule; periodic refresh disabled", err, "spec", conf.Schedule.Refresh)
			sched = nil
		} else {
			sched.Start()
		}
	}

	var watcher *source.Watcher
	if conf.Schedule.Watch && !source.IsRemote(conf.Schedule.Source) {
		watcher, err = source.NewWatcher(catalog)
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			appLog.Error("program file watch disabled", err)
			watcher = nil
		}
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, catalog, db, tokens, m).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		appLog.Info("signal received, shutting down", "signal", sig.String())
	case err := <-errCh:
		appLog.Error("http server failed", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http server shutdown error", err)
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
	if watcher != nil {
		_ = watcher.Stop()
	}
	appLog.Info("confprog exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./confprog.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.source, "source", "", "Program document URL or path (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
