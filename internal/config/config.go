package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/loomworks/loom/internal/model"
)

type Config struct {
	DatabaseURL string // LOOM_DATABASE_URL (required unless dev mode)
	HTTPAddr    string // LOOM_HTTP_ADDR (default ":8080")
	NATSURL     string // LOOM_NATS_URL (optional, empty = no events, in-memory nonces)
	AuthToken   string // LOOM_AUTH_TOKEN (optional, empty = auth disabled)

	// Event buffer settings
	FlushThreshold int           // LOOM_FLUSH_THRESHOLD (default 25 events)
	FlushMaxAge    time.Duration // LOOM_FLUSH_MAX_AGE (default 30s)

	// Nonce settings
	NonceTTL time.Duration // LOOM_NONCE_TTL (default 30s)

	// Archive settings
	ArchiveInterval   time.Duration // LOOM_ARCHIVE_INTERVAL (default 5m; 0 = disabled)
	ArchiveS3Bucket   string        // LOOM_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // LOOM_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // LOOM_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string        // LOOM_ARCHIVE_S3_PREFIX (default "loom/events")

	// External triage collaborators
	ClassifierURL    string // LOOM_CLASSIFIER_URL (empty = rules-only classification)
	DigestWebhookURL string // LOOM_DIGEST_WEBHOOK_URL (empty = digests logged, not dispatched)

	// Tier catalog
	TiersFile string // LOOM_TIERS_FILE (optional TOML file; empty = built-in catalog)
	Tiers     model.TierCatalog
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("LOOM_DATABASE_URL"),
		HTTPAddr:          envOrDefault("LOOM_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("LOOM_NATS_URL"),
		AuthToken:         os.Getenv("LOOM_AUTH_TOKEN"),
		ArchiveS3Bucket:   os.Getenv("LOOM_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("LOOM_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("LOOM_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("LOOM_ARCHIVE_S3_PREFIX", "loom/events"),
		ClassifierURL:     os.Getenv("LOOM_CLASSIFIER_URL"),
		DigestWebhookURL:  os.Getenv("LOOM_DIGEST_WEBHOOK_URL"),
		TiersFile:         os.Getenv("LOOM_TIERS_FILE"),
	}

	var err error
	if c.FlushThreshold, err = envInt("LOOM_FLUSH_THRESHOLD", 25); err != nil {
		return nil, err
	}
	if c.FlushMaxAge, err = envDuration("LOOM_FLUSH_MAX_AGE", 30*time.Second); err != nil {
		return nil, err
	}
	if c.NonceTTL, err = envDuration("LOOM_NONCE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = envDuration("LOOM_ARCHIVE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if c.Tiers, err = loadTiers(c.TiersFile); err != nil {
		return nil, err
	}

	return c, nil
}

// loadTiers reads the tier catalog from a TOML file, falling back to
// the built-in catalog when no file is configured.
//
//	[oak]
//	max_draft_bytes = 262144
//	max_events_per_flush = 50
//	...
func loadTiers(path string) (model.TierCatalog, error) {
	if path == "" {
		return model.DefaultTierCatalog(), nil
	}
	var catalog model.TierCatalog
	if _, err := toml.DecodeFile(path, &catalog); err != nil {
		return nil, fmt.Errorf("LOOM_TIERS_FILE: %w", err)
	}
	if _, ok := catalog["oak"]; !ok {
		return nil, fmt.Errorf("LOOM_TIERS_FILE: catalog must define the fallback tier %q", "oak")
	}
	return catalog, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
