package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateMediaCache(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ModsDir) == "" {
		return errors.New("paths.mods_dir must be set")
	}
	return nil
}

func (c *Config) validateTransport() error {
	if c.Transport.RequestTimeoutSeconds <= 0 {
		return errors.New("transport.request_timeout_seconds must be positive")
	}
	if c.Transport.MaxAttempts < 1 {
		return errors.New("transport.max_attempts must be at least 1")
	}
	if c.Transport.RetryBaseMillis <= 0 {
		return errors.New("transport.retry_base_ms must be positive")
	}
	if c.Transport.RetryMaxMillis < c.Transport.RetryBaseMillis {
		return errors.New("transport.retry_max_ms must be at least transport.retry_base_ms")
	}
	return nil
}

func (c *Config) validateMediaCache() error {
	if c.MediaCache.CapacityBytes <= 0 {
		return errors.New("media_cache.capacity_bytes must be positive")
	}
	if c.MediaCache.MemoryThresholdBytes <= 0 {
		return errors.New("media_cache.memory_threshold_bytes must be positive")
	}
	if c.MediaCache.CleanupBatchSize < 1 {
		return errors.New("media_cache.cleanup_batch_size must be at least 1")
	}
	if c.MediaCache.MonitorIntervalSeconds < 1 {
		return errors.New("media_cache.monitor_interval_seconds must be at least 1")
	}
	if c.MediaCache.Concurrency < 1 {
		return errors.New("media_cache.concurrency must be at least 1")
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if c.Downloads.GracePeriodSeconds < 0 {
		return errors.New("downloads.grace_period_seconds must not be negative")
	}
	if c.Downloads.MinFreeMiB < 0 {
		return errors.New("downloads.min_free_mib must not be negative")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	base := strings.TrimSpace(c.Catalog.BaseURL)
	if base == "" {
		return errors.New("catalog.base_url must be set")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("catalog.base_url must be an http(s) URL, got %q", base)
	}
	return nil
}
