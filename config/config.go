package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ETLToken     string
	WorkDir      string
	DBPath       string
	Jurisdiction string
	APIAddr      string
	ETLCron      string
	PromisesSeed string
	Mirror       MirrorConfig
	Archive      ArchiveConfig
	Fetch        FetchConfig
	Datasets     map[string]*DatasetConfig
}

// MirrorConfig enables the optional Postgres mirror of normalized rows.
type MirrorConfig struct {
	DBURL    string
	Interval time.Duration
}

// ArchiveConfig enables raw-snapshot archiving to S3-compatible storage.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

type FetchConfig struct {
	DelayMS int
}

// DatasetConfig describes one upstream dataset, loaded from
// config/datasets/*.yaml.
type DatasetConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Resource   string `yaml:"resource"`
	DateField  string `yaml:"date_field"`
	PageSize   int    `yaml:"page_size"`
	YearFloor  int    `yaml:"year_floor"`
	Searchable bool   `yaml:"searchable"`
	CatalogURL string `yaml:"catalog_url"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ETLToken:     os.Getenv("ETL_TOKEN"),
		WorkDir:      getEnv("WORK_DIR", "."),
		DBPath:       getEnv("DB_PATH", "civimetre.db"),
		Jurisdiction: getEnv("JURISDICTION", "montreal"),
		APIAddr:      getEnv("API_ADDR", ":8090"),
		ETLCron:      os.Getenv("ETL_CRON"),
		PromisesSeed: getEnv("PROMISES_SEED", "config/promises.yaml"),
		Mirror: MirrorConfig{
			DBURL: os.Getenv("MIRROR_DB_URL"),
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_BUCKET"),
			Region:          getEnv("ARCHIVE_REGION", "us-east-1"),
			Endpoint:        os.Getenv("ARCHIVE_ENDPOINT"),
			AccessKeyID:     os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
		},
		Fetch: FetchConfig{
			DelayMS: getEnvInt("FETCH_DELAY_MS", 500),
		},
		Datasets: make(map[string]*DatasetConfig),
	}

	if interval := os.Getenv("MIRROR_SYNC_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Mirror.Interval = d
		}
	}
	if cfg.Mirror.Interval == 0 {
		cfg.Mirror.Interval = 10 * time.Minute
	}

	if err := cfg.loadDatasetConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadDatasetConfigs() error {
	configDir := filepath.Join(c.WorkDir, "config", "datasets")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var ds DatasetConfig
		if err := yaml.Unmarshal(data, &ds); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if ds.ID == "" {
			return fmt.Errorf("%s: missing dataset id", path)
		}

		c.Datasets[ds.ID] = &ds
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
