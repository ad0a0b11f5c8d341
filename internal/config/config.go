package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Library   LibraryConfig
	Cache     CacheConfig
	Sort      SortConfig
	Web       WebConfig
	Defaults  DefaultsConfig
	LogDebug  bool
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty selects SQLite
	SQLitePath   string // SQLite database file (default reference_data.db)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// UsePostgres reports whether the PostgreSQL backend is configured
func (c *DatabaseConfig) UsePostgres() bool {
	return c.URL != ""
}

type EmbeddingConfig struct {
	URL     string        // defaults to http://localhost:8000
	Timeout time.Duration // per request timeout (default 60s)
}

type LibraryConfig struct {
	ReferenceRoot string   // root folder holding one subfolder per label
	TrashDir      string   // app-local soft-delete folder
	UndoJournal   string   // YAML file persisting the undo stack
	UndoLimit     int      // maximum undo records kept (default 50)
	PhotoRoots    []string // extra roots thumbnails may be served from
}

type CacheConfig struct {
	RebuildDebounce time.Duration // quiet period before a rebuild runs
	ThumbMaxBytes   int64         // thumbnail byte budget
	ThumbMaxItems   int           // thumbnail entry budget
	ThumbWorkers    int           // concurrent thumbnail decoders
}

type SortConfig struct {
	Mode              string // best, multi or manual
	KeepOriginalNames bool
}

type WebConfig struct {
	Host           string
	Port           int
	APIToken       string   // bearer token required by the API, empty disables auth
	AllowedOrigins []string // CORS origins besides localhost
}

// DefaultsConfig holds the values shipped in defaults.yaml
type DefaultsConfig struct {
	ImageExtensions []string         `yaml:"image_extensions"`
	Matching        MatchingDefaults `yaml:"matching"`
	Thumbnails      ThumbDefaults    `yaml:"thumbnails"`
}

type MatchingDefaults struct {
	DefaultThreshold float64 `yaml:"default_threshold"`
	DefaultMode      string  `yaml:"default_mode"`
}

type ThumbDefaults struct {
	BytesPerPixel    int     `yaml:"bytes_per_pixel"`
	ResizeJumpPixels int     `yaml:"resize_jump_pixels"`
	ResizeJumpRatio  float64 `yaml:"resize_jump_ratio"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 is envInt for byte sizes
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool accepts anything strconv.ParseBool does
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadDefaults parses the embedded defaults.yaml
func LoadDefaults() DefaultsConfig {
	var defaults DefaultsConfig
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return defaults
}

func Load() *Config {
	defaults := LoadDefaults()

	referenceRoot := envString("REFERENCE_ROOT", "References")

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			SQLitePath:   envString("SQLITE_PATH", "reference_data.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:     envString("EMBEDDING_URL", "http://localhost:8000"),
			Timeout: time.Duration(envInt("EMBEDDING_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Library: LibraryConfig{
			ReferenceRoot: referenceRoot,
			TrashDir:      envString("TRASH_DIR", filepath.Join(referenceRoot, ".trash")),
			UndoJournal:   envString("UNDO_JOURNAL", filepath.Join(referenceRoot, ".undo.yaml")),
			UndoLimit:     envInt("UNDO_LIMIT", 50),
			PhotoRoots:    envList("PHOTO_ROOTS"),
		},
		Cache: CacheConfig{
			RebuildDebounce: time.Duration(envInt("REBUILD_DEBOUNCE_MS", 200)) * time.Millisecond,
			ThumbMaxBytes:   envInt64("THUMB_CACHE_MAX_BYTES", 256<<20),
			ThumbMaxItems:   envInt("THUMB_CACHE_MAX_ITEMS", 2000),
			ThumbWorkers:    envInt("THUMB_WORKERS", 4),
		},
		Sort: SortConfig{
			Mode:              envString("SORT_MODE", defaults.Matching.DefaultMode),
			KeepOriginalNames: envBool("KEEP_ORIGINAL_NAMES", true),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "127.0.0.1"),
			Port:           envInt("WEB_PORT", 8085),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Defaults: defaults,
		LogDebug: envBool("LOG_DEBUG", false),
	}
}
