package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cptspacemanspiff/battery-history/internal/config"
	dbussvc "github.com/cptspacemanspiff/battery-history/internal/dbus"
	"github.com/cptspacemanspiff/battery-history/internal/dump"
	"github.com/cptspacemanspiff/battery-history/internal/history"
	"github.com/cptspacemanspiff/battery-history/internal/logging"
	"github.com/cptspacemanspiff/battery-history/internal/watch"
)

const defaultConfigPath = "/etc/battery-history/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the TOML config file")
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: dump,service,watch (or 'all')")
	writeConfig := flag.Bool("write-config", false, "write the effective config (defaults if the file is missing) to -config and exit")
	flag.Parse()

	logger := logging.New(os.Stderr, *verbose, *logFlag)

	if *writeConfig {
		if err := writeEffectiveConfig(*configPath); err != nil {
			logger.Error("write config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		logger.Info("config written", "path", *configPath)
		return
	}
	dumpLog := logger.With(logging.TopicKey, "dump")
	watchLog := logger.With(logging.TopicKey, "watch")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	store := history.NewStore()
	loader := &reloader{cfg: cfg, store: store, log: dumpLog, now: time.Now}
	loader.reload("startup")

	svc := dbussvc.NewService(store, cfg.Service.BusName, time.Duration(cfg.Service.MaxRangeHours)*time.Hour)
	conn, err := svc.Export()
	if err != nil {
		logger.Error("export dbus service", "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("D-Bus service registered", "name", cfg.Service.BusName)

	var changedCh <-chan struct{}
	if cfg.Reload.OnChange {
		fw, err := watch.NewFileWatcher(watchLog, cfg.Dump.Path, time.Duration(cfg.Reload.DebounceMs)*time.Millisecond)
		if err != nil {
			logger.Warn("file watcher unavailable", "err", err)
		} else {
			changedCh = fw.Changed()
			defer fw.Close()
		}
	}

	var wakeCh <-chan struct{}
	if cfg.Reload.OnWake {
		sleepMon, err := watch.NewSleepMonitor(watchLog)
		if err != nil {
			logger.Warn("sleep monitor unavailable", "err", err)
		} else {
			wakeCh = sleepMon.Wake()
			defer sleepMon.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	logger.Info("battery-history-daemon started", "dump", cfg.Dump.Path)
	for {
		select {
		case <-changedCh:
			loader.reload("dump changed")
		case <-wakeCh:
			loader.reload("wake")
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				loader.reload("sighup")
				continue
			}
			logger.Info("shutting down")
			return
		}
	}
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.NormalizeAndValidate(config.DefaultConfig())
	}
	return cfg, err
}

// writeEffectiveConfig normalizes the config at path, or the defaults when
// it does not exist, and saves it back in canonical form.
func writeEffectiveConfig(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	return config.Save(path, cfg)
}

// reloader reads the dump and publishes a freshly aligned snapshot. A
// failed load keeps the previously published snapshot. Alignment follows
// the dump's capture or modification time, so reloading an unchanged dump
// republishes the same timeline.
type reloader struct {
	cfg   *config.Config
	store *history.Store
	log   *slog.Logger
	now   func() time.Time
}

func (r *reloader) reload(reason string) {
	snap, err := dump.Load(r.log, r.cfg.Dump.Path, dump.Options{
		Strict:       r.cfg.Decode.Strict,
		MaxLineBytes: r.cfg.Dump.MaxLineBytes,
	})
	if err != nil {
		r.log.Error("load dump", "reason", reason, "err", err)
		return
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	built := history.Build(snap.History, snap.Wakelocks, snap.AlignTime(now()))
	r.store.Publish(built)
	r.log.Info("published history",
		"reason", reason,
		"samples", len(built.Samples),
		"wakelocks", len(built.Wakelocks),
		"offset_ms", built.Offset)
}
