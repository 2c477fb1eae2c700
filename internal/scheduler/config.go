package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval           time.Duration
	BatchSize             int
	JobTimeout            time.Duration
	SplitterInterval      time.Duration
	NotificationBatchSize int
	EnabledJobs           []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:           time.Minute,
		BatchSize:             50,
		JobTimeout:            30 * time.Second,
		SplitterInterval:      24 * time.Hour,
		NotificationBatchSize: 100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.SplitterInterval <= 0 {
		c.SplitterInterval = defaults.SplitterInterval
	}
	if c.NotificationBatchSize <= 0 {
		c.NotificationBatchSize = defaults.NotificationBatchSize
	}
	return c
}
