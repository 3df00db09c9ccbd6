package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateComposition(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if strings.TrimSpace(c.Generation.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/reelsmith/config.toml"
		}
		return fmt.Errorf("generation.base_url is required. Edit %s (create with 'reelsmith config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Generation.BaseURL, "http://") && !strings.HasPrefix(c.Generation.BaseURL, "https://") {
		return errors.New("generation.base_url must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateComposition() error {
	if strings.TrimSpace(c.Composition.BaseURL) == "" {
		return errors.New("composition.base_url is required")
	}
	if !strings.HasPrefix(c.Composition.BaseURL, "http://") && !strings.HasPrefix(c.Composition.BaseURL, "https://") {
		return errors.New("composition.base_url must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Endpoint) == "" {
		// Storage is optional; re-hosting degrades to transient URLs.
		return nil
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.endpoint is configured")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket must be set")
	}
	return nil
}

func (c *Config) validateAdmission() error {
	if c.Admission.MaxConcurrentJobs < 1 {
		return errors.New("admission.max_concurrent_jobs must be at least 1")
	}
	if c.Admission.MaxConcurrentJobs > 64 {
		return errors.New("admission.max_concurrent_jobs is unreasonably large")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
