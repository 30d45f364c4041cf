package app

import (
	"reflect"
	"slices"

	"mdbot/internal/config"
)

// changedSections lists the top-level config sections that differ between
// two snapshots. The names feed the reload log and the restart-required
// warning; they say nothing about which fields inside a section moved.
func changedSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		if prev == next {
			return nil
		}
		return []string{"all"}
	}

	var out []string
	add := func(name string, differs bool) {
		if differs {
			out = append(out, name)
		}
	}
	add("telegram", prev.Telegram != next.Telegram)
	add("mongo", prev.Mongo != next.Mongo)
	add("admins", !slices.Equal(prev.Admins, next.Admins))
	add("logging", !reflect.DeepEqual(prev.Logging, next.Logging))
	add("broadcast", prev.Broadcast != next.Broadcast)
	add("scheduler", !reflect.DeepEqual(prev.Scheduler, next.Scheduler))
	add("antispam", prev.Antispam != next.Antispam)
	add("tts", prev.TTS != next.TTS)
	add("audit", !reflect.DeepEqual(prev.Audit, next.Audit))
	return out
}
