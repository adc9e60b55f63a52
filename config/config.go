package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"mangadl/downloader"
	"mangadl/parser"
)

// EnvPrefix is prepended to every environment override, e.g. MANGADL_NUM_THREADS.
const EnvPrefix = "MANGADL_"

// Settings is the content of config.yaml. Every field can be overridden
// from the environment.
type Settings struct {
	Mangas           string `yaml:"mangas" env:"MANGAS"`
	SaveLocation     string `yaml:"save_location" env:"SAVE_LOCATION"`
	MultiThreaded    bool   `yaml:"multi_threaded" env:"MULTI_THREADED"`
	NumThreads       int    `yaml:"num_threads" env:"NUM_THREADS"`
	Schedule         int    `yaml:"schedule" env:"SCHEDULE"`
	ConvertWebP      bool   `yaml:"convert_webp" env:"CONVERT_WEBP"`
	MangaDexReport   bool   `yaml:"mangadex_report" env:"MANGADEX_REPORT"`
	Language         string `yaml:"language" env:"LANGUAGE"`
	LogDir           string `yaml:"log_dir" env:"LOG_DIR"`
	RateLimitMS      int    `yaml:"rate_limit_ms" env:"RATE_LIMIT_MS"`
	RateLimitRetries int    `yaml:"rate_limit_retries" env:"RATE_LIMIT_RETRIES"`
}

// Defaults returns the settings written to a freshly generated config file.
func Defaults() Settings {
	return Settings{
		Mangas:           "./data/manga.txt",
		SaveLocation:     "./data/manga",
		MultiThreaded:    true,
		NumThreads:       10,
		Schedule:         60,
		Language:         "en",
		LogDir:           "./data/logs",
		RateLimitMS:      int(downloader.DefaultRateLimit / time.Millisecond),
		RateLimitRetries: downloader.RateLimitAttempts,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/mangadl/config.yaml (or the platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot locate user config directory: %w", err)
	}
	return filepath.Join(dir, "mangadl", "config.yaml"), nil
}

// Load reads the settings at path, generating the file with defaults when
// it does not exist yet, and then applies MANGADL_* environment overrides.
func Load(path string) (Settings, error) {
	path, err := parser.ExpandPath(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: cannot expand %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[Config] No config file found. Generating one at %s", path)
		if err := Save(path, Defaults()); err != nil {
			return Settings{}, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	// Keys missing from an older file keep their defaults
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes s to path as YAML, creating the parent directory.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: error creating directory %s: %w", filepath.Dir(path), err)
	}

	var buf bytes.Buffer
	buf.WriteString("# mangadl settings. Every key can be overridden with MANGADL_<KEY>.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("config: failed to encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: failed to encode settings: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the downloader cannot work with.
func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.SaveLocation) == "" {
		problems = append(problems, "save_location is empty")
	}
	if s.NumThreads < 1 {
		problems = append(problems, fmt.Sprintf("num_threads must be at least 1, got %d", s.NumThreads))
	}
	if s.Schedule < 0 {
		problems = append(problems, fmt.Sprintf("schedule must not be negative, got %d", s.Schedule))
	}
	if s.RateLimitMS < 0 {
		problems = append(problems, fmt.Sprintf("rate_limit_ms must not be negative, got %d", s.RateLimitMS))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ScheduleInterval is the pause between runs in schedule mode.
func (s Settings) ScheduleInterval() time.Duration {
	return time.Duration(s.Schedule) * time.Minute
}

// ClientOptions turns the rate limit settings into HTTP client options.
func (s Settings) ClientOptions() downloader.ClientOptions {
	opts := downloader.DefaultClientOptions()
	opts.RateLimit = time.Duration(s.RateLimitMS) * time.Millisecond
	if s.RateLimitRetries > 0 {
		opts.RetryAttempts = s.RateLimitRetries
	}
	return opts
}

// ManagerOptions maps the settings onto a run coordinator configuration.
func (s Settings) ManagerOptions() downloader.Options {
	return downloader.Options{
		SaveLocation:  s.SaveLocation,
		MultiThreaded: s.MultiThreaded,
		Workers:       s.NumThreads,
		ConvertWebP:   s.ConvertWebP,
		Language:      s.Language,
	}
}

// LoadSources reads the source list: one URL per line, blank lines and
// # comments skipped, trailing slashes trimmed.
func LoadSources(path string) ([]string, error) {
	path, err := parser.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot expand %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: error loading source list: %w", err)
	}
	defer f.Close()

	var sources []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sources = append(sources, strings.TrimRight(line, "/"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: error reading source list: %w", err)
	}
	return sources, nil
}
