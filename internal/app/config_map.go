package app

import (
	"strings"
	"time"

	"mdbot/internal/audit"
	"mdbot/internal/config"
	"mdbot/internal/handlers"
	"mdbot/internal/services/broadcast"
	"mdbot/internal/services/scheduler"
	"mdbot/internal/store"
)

// Mapping helpers translate the raw file/env config into per-component
// configs. Validate() has already vetted the duration strings, but every
// helper still returns an error so new fields keep a single failure path.

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	connect, err := config.ParseDurationOrDefault("mongo.connect_timeout", cfg.Mongo.ConnectTimeout, 10*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	op, err := config.ParseDurationOrDefault("mongo.op_timeout", cfg.Mongo.OpTimeout, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: connect,
		OpTimeout:      op,
	}, nil
}

func mapAuditConfig(cfg *config.Config) (audit.Config, error) {
	if cfg.Audit == nil {
		return audit.Config{}, nil
	}
	busy, err := config.ParseDurationField("audit.busy_timeout", cfg.Audit.BusyTimeout)
	if err != nil {
		return audit.Config{}, err
	}
	keep, err := config.ParseDurationOrDefault("audit.retention", cfg.Audit.Retention, 30*24*time.Hour)
	if err != nil {
		return audit.Config{}, err
	}
	return audit.Config{
		Driver:      cfg.Audit.Driver,
		Path:        cfg.Audit.Path,
		BusyTimeout: busy,
		Retention:   keep,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	interval, err := config.ParseDurationOrDefault("broadcast.send_interval", cfg.Broadcast.SendInterval, broadcast.DefaultSendInterval)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		SendInterval: interval,
		QueueSize:    cfg.Broadcast.QueueSize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	maxDelay, err := config.ParseDurationOrDefault("scheduler.max_delay", cfg.Scheduler.MaxDelay, 24*time.Hour)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:    cfg.Scheduler.Timezone,
		HistorySize: cfg.Scheduler.HistorySize,
		MaxDelay:    maxDelay,
	}, nil
}

func mapAntispamConfig(cfg *config.Config) (handlers.AntispamConfig, error) {
	window, err := config.ParseDurationOrDefault("antispam.window", cfg.Antispam.Window, 10*time.Second)
	if err != nil {
		return handlers.AntispamConfig{}, err
	}
	muteFor, err := config.ParseDurationOrDefault("antispam.mute_for", cfg.Antispam.MuteFor, 24*time.Hour)
	if err != nil {
		return handlers.AntispamConfig{}, err
	}
	return handlers.AntispamConfig{
		Window:    window,
		Threshold: cfg.Antispam.Threshold,
		MuteFor:   muteFor,
	}, nil
}

const defaultAuditPruneSpec = "30 3 * * *"

func auditPruneSpec(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Scheduler.AuditPruneSpec); s != "" {
		return s
	}
	return defaultAuditPruneSpec
}
