package orchestrator

import "time"

// Defaults applied by Config.withDefaults.
const (
	DefaultPoolSize         = 4
	DefaultTaskTimeout      = 30 * time.Second
	DefaultInterSourceDelay = 2 * time.Second
	DefaultMaxPerSource     = 20
	// MetricsSourceLabel is the source label reported for whole crawls.
	MetricsSourceLabel = "multi-source"
)

// SourceConfig is the per-source slice of the crawler configuration.
type SourceConfig struct {
	Enabled    bool
	MaxResults int
}

// Config drives source resolution and the fan-out policy.
type Config struct {
	Enabled bool
	// Sources is the ordered default source list used when a request names none.
	Sources []string
	// SourceConfigs marks which default sources are enabled and caps their yield.
	SourceConfigs map[string]SourceConfig
	// MaxPerSource is the global per-source cap for sequential mode.
	MaxPerSource    int
	ClassifyEnabled bool
	Parallel        bool
	// InterSourceDelay is the sequential-mode pause between adapter calls.
	InterSourceDelay time.Duration
	// TaskTimeout bounds each adapter call, including time spent waiting for a
	// pool slot in parallel mode.
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPerSource <= 0 {
		c.MaxPerSource = DefaultMaxPerSource
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.InterSourceDelay < 0 {
		c.InterSourceDelay = 0
	}
	return c
}

// sourceCap returns the smaller of the global cap and a positive per-source cap.
func (c Config) sourceCap(name string) int {
	limit := c.MaxPerSource
	if sc, ok := c.SourceConfigs[name]; ok && sc.MaxResults > 0 && sc.MaxResults < limit {
		limit = sc.MaxResults
	}
	return limit
}

// enabledDefaults returns the default sources whose config entry marks them
// enabled, in list order. A source without an entry is skipped.
func (c Config) enabledDefaults() []string {
	out := make([]string, 0, len(c.Sources))
	for _, name := range c.Sources {
		if sc, ok := c.SourceConfigs[name]; ok && sc.Enabled {
			out = append(out, name)
		}
	}
	return out
}
