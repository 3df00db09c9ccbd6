package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeGeneration(); err != nil {
		return err
	}
	c.normalizeComposition()
	c.normalizeStorage()
	c.normalizeAdmission()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Paths.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Paths.PublicBaseURL), "/")
	return nil
}

func (c *Config) normalizeGeneration() error {
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("GENERATION_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
	if strings.TrimSpace(c.Generation.CatalogPath) == "" {
		c.Generation.CatalogPath = defaultCatalogPath
	}
	var err error
	if c.Generation.CatalogPath, err = expandPath(c.Generation.CatalogPath); err != nil {
		return fmt.Errorf("generation.catalog_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeComposition() {
	if c.Composition.APIKey == "" {
		if value, ok := os.LookupEnv("COMPOSITION_API_KEY"); ok {
			c.Composition.APIKey = strings.TrimSpace(value)
		}
	}
	c.Composition.BaseURL = strings.TrimRight(strings.TrimSpace(c.Composition.BaseURL), "/")
	if c.Composition.TimeoutSeconds <= 0 {
		c.Composition.TimeoutSeconds = defaultCompositionTimeout
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		c.Storage.Bucket = defaultStorageBucket
	}
}

func (c *Config) normalizeAdmission() {
	if c.Admission.MaxConcurrentJobs <= 0 {
		c.Admission.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.Tasks.BatchConcurrency <= 0 {
		c.Tasks.BatchConcurrency = defaultBatchConcurrency
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
