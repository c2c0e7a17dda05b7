// Package config loads treewatch configuration from flags, environment variables and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Watch   WatchConfig
	Server  ServerConfig
	Journal JournalConfig

	// Args holds the positional arguments left after flag parsing.
	Args []string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// DataPath holds state such as the journal database (default: ~/.treewatch).
	DataPath string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string
	File       string // Optional rotated JSON log file
	MaxSizeMB  int
	MaxBackups int
}

// WatchConfig controls how directories are watched.
type WatchConfig struct {
	Backend          string        // auto, inotify, fsevents, fsnotify or poll
	Latency          time.Duration // Coalescing window for notifications
	PollInterval     time.Duration // Poll backend rescan interval
	LoopSlice        time.Duration // Event loop slice between input checks
	MaxPending       int           // Pending paths before collapsing to a root rescan
	QueueSize        int           // Notifications buffered for the loop
	IgnorePatterns   []string
	IgnoreHidden     bool
	NormalizeUnicode bool
	// WatchList is a YAML file of roots registered at startup. Optional.
	WatchList string
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Enabled           bool
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // Zero for no limit; SSE streams are long-lived
	IdleTimeout       time.Duration
	CORSOrigins       []string
	RateLimit         float64 // Requests per second per client, 0 disables
	RateBurst         int
	HeartbeatInterval time.Duration
}

// JournalConfig holds change journal configuration.
type JournalConfig struct {
	Enabled bool
	Path    string // default: {data}/journal.db
	Buffer  int    // Batches queued for the writer before dropping
	// Retention drops entries older than this at startup. Zero keeps
	// everything.
	Retention time.Duration
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("treewatchd", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	dataPath := fs.String("data-path", "", "Directory for treewatch state (default: ~/.treewatch)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := fs.String("log-file", "", "Also write JSON logs to this file")
	logMaxSize := fs.String("log-max-size", "", "Log file size in MB before rotation (default: 50)")
	logMaxBackups := fs.String("log-max-backups", "", "Rotated log files to keep (default: 3)")

	backend := fs.String("backend", "", "Watch backend: auto, inotify, fsevents, fsnotify, poll (default: auto)")
	latency := fs.String("latency", "", "Notification coalescing window (default: 250ms)")
	pollInterval := fs.String("poll-interval", "", "Poll backend interval (default: 2s)")
	loopSlice := fs.String("loop-slice", "", "Event loop slice (default: 1s)")
	maxPending := fs.String("max-pending", "", "Pending paths before a full rescan (default: 512)")
	queueSize := fs.String("queue-size", "", "Notifications buffered for the loop (default: 256)")
	ignore := fs.String("ignore", "", "Comma-separated ignore globs (default: .DS_Store,*.tmp,*.temp,Thumbs.db)")
	ignoreHidden := fs.String("ignore-hidden", "", "Skip dot files and directories (default: true)")
	normalize := fs.String("normalize-unicode", "", "Normalize names to NFC (default: true on macOS)")
	watchList := fs.String("watch-list", "", "YAML file of directories to watch at startup")

	serverEnabled := fs.String("http", "", "Serve the HTTP API (default: true)")
	addr := fs.String("addr", "", "HTTP listen address (default: 127.0.0.1:7878)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout, 0 for none (default: 0)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins")
	rateLimit := fs.String("rate-limit", "", "API requests per second per client, 0 disables (default: 20)")
	rateBurst := fs.String("rate-burst", "", "API burst size (default: 40)")
	heartbeat := fs.String("heartbeat", "", "SSE heartbeat interval (default: 30s)")

	journalEnabled := fs.String("journal", "", "Record change events to SQLite (default: true)")
	journalPath := fs.String("journal-path", "", "Journal database path (default: {data}/journal.db)")
	journalBuffer := fs.String("journal-buffer", "", "Batches queued for the journal writer (default: 1024)")
	journalRetention := fs.String("journal-retention", "", "Drop journal entries older than this at startup, 0 keeps all (default: 720h)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Missing .env files are fine.
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		Args: fs.Args(),
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataPath:    getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{
			Level:      getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			File:       getConfigValue(*logFile, "LOG_FILE", ""),
			MaxSizeMB:  getIntConfigValue(*logMaxSize, "LOG_MAX_SIZE_MB", 50),
			MaxBackups: getIntConfigValue(*logMaxBackups, "LOG_MAX_BACKUPS", 3),
		},
		Watch: WatchConfig{
			Backend:          getConfigValue(*backend, "WATCH_BACKEND", "auto"),
			MaxPending:       getIntConfigValue(*maxPending, "WATCH_MAX_PENDING", 512),
			QueueSize:        getIntConfigValue(*queueSize, "WATCH_QUEUE_SIZE", 256),
			IgnorePatterns:   getListConfigValue(*ignore, "WATCH_IGNORE", []string{".DS_Store", "*.tmp", "*.temp", "Thumbs.db"}),
			IgnoreHidden:     getBoolConfigValue(*ignoreHidden, "WATCH_IGNORE_HIDDEN", true),
			NormalizeUnicode: getBoolConfigValue(*normalize, "WATCH_NORMALIZE_UNICODE", defaultNormalize()),
			WatchList:        getConfigValue(*watchList, "WATCH_LIST", ""),
		},
		Server: ServerConfig{
			Enabled:     getBoolConfigValue(*serverEnabled, "SERVER_ENABLED", true),
			Addr:        getConfigValue(*addr, "SERVER_ADDR", "127.0.0.1:7878"),
			CORSOrigins: getListConfigValue(*corsOrigins, "SERVER_CORS_ORIGINS", nil),
			RateBurst:   getIntConfigValue(*rateBurst, "SERVER_RATE_BURST", 40),
		},
		Journal: JournalConfig{
			Enabled: getBoolConfigValue(*journalEnabled, "JOURNAL_ENABLED", true),
			Path:    getConfigValue(*journalPath, "JOURNAL_PATH", ""),
			Buffer:  getIntConfigValue(*journalBuffer, "JOURNAL_BUFFER", 1024),
		},
	}

	durations := []struct {
		dst          *time.Duration
		flag, envKey string
		def          string
	}{
		{&cfg.Watch.Latency, *latency, "WATCH_LATENCY", "250ms"},
		{&cfg.Watch.PollInterval, *pollInterval, "WATCH_POLL_INTERVAL", "2s"},
		{&cfg.Watch.LoopSlice, *loopSlice, "WATCH_LOOP_SLICE", "1s"},
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Server.HeartbeatInterval, *heartbeat, "SSE_HEARTBEAT", "30s"},
		{&cfg.Journal.Retention, *journalRetention, "JOURNAL_RETENTION", "720h"},
	}
	for _, d := range durations {
		s := getConfigValue(d.flag, d.envKey, d.def)
		v, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, s, err)
		}
		*d.dst = v
	}

	rateStr := getConfigValue(*rateLimit, "SERVER_RATE_LIMIT", "20")
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_RATE_LIMIT %q: %w", rateStr, err)
	}
	cfg.Server.RateLimit = rate

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	validBackends := map[string]bool{
		"auto":     true,
		"inotify":  true,
		"fsevents": true,
		"fsnotify": true,
		"poll":     true,
	}
	if !validBackends[c.Watch.Backend] {
		return fmt.Errorf("invalid watch backend: %s (must be auto, inotify, fsevents, fsnotify, or poll)", c.Watch.Backend)
	}

	if c.Watch.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.Watch.LoopSlice <= 0 {
		return errors.New("loop slice must be positive")
	}
	if c.Watch.MaxPending < 1 {
		return errors.New("max pending must be at least 1")
	}
	if c.Watch.QueueSize < 1 {
		return errors.New("queue size must be at least 1")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return errors.New("rate burst must be at least 1 when rate limiting")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("journal path cannot be empty after expansion")
	}
	if c.Journal.Buffer < 1 {
		return errors.New("journal buffer must be at least 1")
	}
	if c.Journal.Retention < 0 {
		return errors.New("journal retention cannot be negative")
	}

	return nil
}

func defaultNormalize() bool {
	return runtime.GOOS == "darwin"
}

// expandPaths expands ~ and makes every configured path absolute.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(homeDir, ".treewatch")); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	if c.Journal.Path, err = expandPath(c.Journal.Path, filepath.Join(c.App.DataPath, "journal.db")); err != nil {
		return fmt.Errorf("invalid journal path: %w", err)
	}
	if c.Logger.File, err = expandPath(c.Logger.File, ""); err != nil {
		return fmt.Errorf("invalid log file: %w", err)
	}
	if c.Watch.WatchList, err = expandPath(c.Watch.WatchList, ""); err != nil {
		return fmt.Errorf("invalid watch list path: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty the default is returned as is.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getListConfigValue splits a comma-separated value, dropping blanks.
// The value "none" yields an empty list.
func getListConfigValue(flagValue, envKey string, defaultValue []string) []string {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	if strValue == "none" {
		return []string{}
	}
	var out []string
	for item := range strings.SplitSeq(strValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
