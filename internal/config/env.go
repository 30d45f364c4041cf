package config

import (
	"os"
	"strings"
)

// Environment variables recognized by the bot. They override the config
// file so a bare deployment needs nothing but BOT_TOKEN.
const (
	EnvToken    = "BOT_TOKEN"
	EnvMongoURL = "MONGO_URL"
	EnvAdminIDs = "ADMIN_IDS"
	EnvLogLevel = "LOG_LEVEL"
)

// ApplyEnv overlays environment variables onto cfg. Empty variables leave
// the file values alone.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMongoURL)); v != "" {
		cfg.Mongo.URI = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAdminIDs)); v != "" {
		cfg.Admins = SplitAdminIDs(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

// SplitAdminIDs parses a comma-separated admin identifier list. The ids
// stay strings; admin checks compare formatted sender ids, not numbers.
func SplitAdminIDs(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
