package tracker

import (
	"time"

	"fieldforce_backend/internals/configs"
)

type Config struct {
	SampleInterval   time.Duration // minimum spacing between automatic samples
	TickInterval     time.Duration // how often the sampler checks whether a sample is due
	RetryDelay       time.Duration // delay before the single retry of a failed read or write
	OperationTimeout time.Duration // check-in / check-out deadline
	WatchdogTimeout  time.Duration // force-clears a stuck in-flight flag; keep above OperationTimeout
	InitialGrace     time.Duration // auto-sampling pause after a manual check-in location
	GeoTimeout       time.Duration

	// Location decides which calendar day a checkout is summarised under.
	Location *time.Location
	Now      func() time.Time
}

func DefaultConfig() Config {
	return Config{
		SampleInterval:   2 * time.Minute,
		TickInterval:     15 * time.Second,
		RetryDelay:       5 * time.Second,
		OperationTimeout: 30 * time.Second,
		WatchdogTimeout:  60 * time.Second,
		InitialGrace:     30 * time.Second,
		GeoTimeout:       15 * time.Second,
		Location:         time.UTC,
		Now:              time.Now,
	}
}

// LoadConfig reads TRACKER_* overrides on top of DefaultConfig.
func LoadConfig() Config {
	def := DefaultConfig()
	return Config{
		SampleInterval:   configs.GetEnvDuration("TRACKER_SAMPLE_INTERVAL", def.SampleInterval),
		TickInterval:     configs.GetEnvDuration("TRACKER_TICK_INTERVAL", def.TickInterval),
		RetryDelay:       configs.GetEnvDuration("TRACKER_RETRY_DELAY", def.RetryDelay),
		OperationTimeout: configs.GetEnvDuration("TRACKER_OPERATION_TIMEOUT", def.OperationTimeout),
		WatchdogTimeout:  configs.GetEnvDuration("TRACKER_WATCHDOG_TIMEOUT", def.WatchdogTimeout),
		InitialGrace:     configs.GetEnvDuration("TRACKER_INITIAL_GRACE", def.InitialGrace),
		GeoTimeout:       configs.GetEnvDuration("TRACKER_GEO_TIMEOUT", def.GeoTimeout),
		Location:         configs.WorkdayLocation(),
		Now:              time.Now,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleInterval <= 0 {
		c.SampleInterval = def.SampleInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = def.OperationTimeout
	}
	if c.WatchdogTimeout <= c.OperationTimeout {
		c.WatchdogTimeout = 2 * c.OperationTimeout
	}
	if c.InitialGrace < 0 {
		c.InitialGrace = 0
	}
	if c.GeoTimeout <= 0 {
		c.GeoTimeout = def.GeoTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
