package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/infrastructure/logging"
	"soPushBot/internal/infrastructure/stackexchange"
	"soPushBot/internal/infrastructure/storage"
)

const (
	SourceModeAPI    = "api"
	SourceModeScrape = "scrape"
	SourceModeFeed   = "feed"

	MaxPageSize = 100
)

type Config struct {
	PushoverUser   string `envconfig:"PUSHOVER_USER" required:"true"`
	PushoverToken  string `envconfig:"PUSHOVER_TOKEN" required:"true"`
	PushoverDevice string `envconfig:"PUSHOVER_DEVICE"`
	PushoverAPIURL string `envconfig:"PUSHOVER_API_URL" default:"https://api.pushover.net/1/messages.json"`

	Tags         []string `envconfig:"TAGS"`
	TagMatch     string   `envconfig:"TAG_MATCH" default:"any"`
	SourceMode   string   `envconfig:"SOURCE_MODE" default:"api"`
	StackAppsKey string   `envconfig:"STACK_APPS_KEY"`
	Site         string   `envconfig:"SITE" default:"stackoverflow"`
	PageSize     int      `envconfig:"PAGE_SIZE" default:"30"`
	APIBaseURL   string   `envconfig:"API_BASE_URL" default:"https://api.stackexchange.com/2.3"`
	SiteBaseURL  string   `envconfig:"SITE_BASE_URL" default:"https://stackoverflow.com"`

	RetentionRaw string        `envconfig:"RETENTION" default:"48h"`
	Retention    time.Duration `ignored:"true"`

	CacheDriver    string        `envconfig:"CACHE_DRIVER" default:"json"`
	CachePath      string        `envconfig:"CACHE_PATH" default:"data.json"`
	LockPath       string        `envconfig:"LOCK_PATH"`
	LockStaleAfter time.Duration `envconfig:"LOCK_STALE_AFTER" default:"10m"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	NotifyTitle string        `envconfig:"NOTIFY_TITLE" default:"StackOverflow: new question"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// LoadConfig reads .env, then the optional YAML file, then the environment.
// Neither file overrides a variable that is already set. configFile falls
// back to CONFIG_FILE when empty.
func LoadConfig(configFile string) (*Config, error) {
	_ = godotenv.Load()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		if err := loadYAMLFile(configFile); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		var parseErr *envconfig.ParseError
		if errors.As(err, &parseErr) {
			return nil, &apperror.ConfigError{Field: parseErr.KeyName, Err: parseErr.Err}
		}
		return nil, &apperror.ConfigError{Err: err}
	}

	if tags := loadTags(); len(tags) > 0 {
		cfg.Tags = tags
	} else {
		cfg.Tags = normalizeTags(cfg.Tags)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) finalize() error {
	if strings.TrimSpace(c.PushoverUser) == "" {
		return &apperror.ConfigError{Field: "PUSHOVER_USER", Err: errors.New("must not be empty")}
	}
	if strings.TrimSpace(c.PushoverToken) == "" {
		return &apperror.ConfigError{Field: "PUSHOVER_TOKEN", Err: errors.New("must not be empty")}
	}
	if len(c.Tags) == 0 {
		return &apperror.ConfigError{Field: "TAGS", Err: errors.New("no tags configured. Please set TAGS or TAG_1, TAG_2, etc.")}
	}

	c.SourceMode = strings.ToLower(strings.TrimSpace(c.SourceMode))
	switch c.SourceMode {
	case SourceModeAPI, SourceModeScrape, SourceModeFeed:
	default:
		return &apperror.ConfigError{Field: "SOURCE_MODE", Err: fmt.Errorf("unknown mode %q", c.SourceMode)}
	}

	c.TagMatch = strings.ToLower(strings.TrimSpace(c.TagMatch))
	switch c.TagMatch {
	case stackexchange.TagMatchAny, stackexchange.TagMatchAll:
	default:
		return &apperror.ConfigError{Field: "TAG_MATCH", Err: fmt.Errorf("unknown tag match %q", c.TagMatch)}
	}

	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return &apperror.ConfigError{Field: "PAGE_SIZE", Err: fmt.Errorf("must be between 1 and %d, got %d", MaxPageSize, c.PageSize)}
	}

	retention, err := ParseRetention(c.RetentionRaw)
	if err != nil {
		return &apperror.ConfigError{Field: "RETENTION", Err: err}
	}
	c.Retention = retention

	c.CacheDriver = strings.ToLower(strings.TrimSpace(c.CacheDriver))
	switch c.CacheDriver {
	case storage.DriverJSON, storage.DriverSQLite, storage.DriverMemory:
	default:
		return &apperror.ConfigError{Field: "CACHE_DRIVER", Err: fmt.Errorf("unknown driver %q", c.CacheDriver)}
	}
	if c.CachePath == "" && c.CacheDriver != storage.DriverMemory {
		return &apperror.ConfigError{Field: "CACHE_PATH", Err: errors.New("must not be empty")}
	}
	if c.LockPath == "" {
		c.LockPath = c.CachePath + ".lock"
	}

	if c.LockStaleAfter <= 0 {
		return &apperror.ConfigError{Field: "LOCK_STALE_AFTER", Err: errors.New("must be positive")}
	}
	if c.HTTPTimeout <= 0 {
		return &apperror.ConfigError{Field: "HTTP_TIMEOUT", Err: errors.New("must be positive")}
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &apperror.ConfigError{Field: "LOG_LEVEL", Err: err}
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != logging.FormatConsole && c.LogFormat != logging.FormatJSON {
		return &apperror.ConfigError{Field: "LOG_FORMAT", Err: fmt.Errorf("unknown format %q", c.LogFormat)}
	}

	return nil
}

// ParseRetention accepts Go durations ("36h", "90m") and whole days ("2d").
func ParseRetention(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d = parsed
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

func loadTags() []string {
	var tags []string

	for i := 1; ; i++ {
		key := fmt.Sprintf("TAG_%d", i)
		tag := os.Getenv(key)
		if tag == "" {
			break
		}
		tags = append(tags, tag)
	}

	return normalizeTags(tags)
}

func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var tags []string
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}

// loadYAMLFile exports the file's top-level keys into the environment so
// envconfig sees them. Lists become comma-joined values.
func loadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &apperror.ConfigError{Field: "CONFIG_FILE", Err: err}
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return &apperror.ConfigError{Field: "CONFIG_FILE", Err: fmt.Errorf("invalid yaml in %s: %w", path, err)}
	}

	for key, raw := range values {
		key = strings.ToUpper(strings.TrimSpace(key))
		if v, ok := os.LookupEnv(key); ok && v != "" {
			continue
		}

		value, err := yamlValue(raw)
		if err != nil {
			return &apperror.ConfigError{Field: key, Err: err}
		}
		if err := os.Setenv(key, value); err != nil {
			return &apperror.ConfigError{Field: key, Err: err}
		}
	}

	return nil
}

func yamlValue(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := yamlValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return "", errors.New("nested mappings are not supported")
	default:
		return fmt.Sprint(v), nil
	}
}
