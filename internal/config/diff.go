package config

import (
	"reflect"
	"time"

	"github.com/MrWong99/intervox/internal/endpoint"
)

// ConfigDiff describes what changed between two configs.
//
// Log level, endpointing and settle delay are applied without a restart;
// endpointing and settle delay take effect for sessions started afterwards.
// Every other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	EndpointingChanged bool
	NewEndpointing     endpoint.Params

	SettleDelayChanged bool
	NewSettleDelay     time.Duration

	SessionDefaultsChanged bool

	// RestartRequired names the top-level sections whose changes are only
	// picked up by a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.EndpointingChanged || d.SettleDelayChanged ||
		d.SessionDefaultsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if op, np := old.Endpointing.Params(), new.Endpointing.Params(); op != np {
		d.EndpointingChanged = true
		d.NewEndpointing = np
	}
	if old.Session.SettleDelay != new.Session.SettleDelay {
		d.SettleDelayChanged = true
		d.NewSettleDelay = new.Session.SettleDelay
	}
	if old.Session.DefaultType != new.Session.DefaultType || old.Session.DefaultDuration != new.Session.DefaultDuration {
		d.SessionDefaultsChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"playback", old.Playback, new.Playback},
		{"dialogue", old.Dialogue, new.Dialogue},
		{"transcription", old.Transcription, new.Transcription},
		{"providers", old.Providers, new.Providers},
		{"backend", old.Backend, new.Backend},
		{"telemetry", old.Telemetry, new.Telemetry},
	}
	if old.Session.ArchivePath != new.Session.ArchivePath {
		d.RestartRequired = append(d.RestartRequired, "session.archive_path")
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
