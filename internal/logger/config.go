package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig represents the complete logging configuration as read from a
// file or the environment.
type LogConfig struct {
	Level      string          `json:"level" yaml:"level"`
	Format     string          `json:"format" yaml:"format"`
	Output     string          `json:"output" yaml:"output"`
	Components map[string]bool `json:"components" yaml:"components"`
	ShowCaller bool            `json:"show_caller" yaml:"show_caller"`
	Timestamp  bool            `json:"timestamp" yaml:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty" yaml:"rotation,omitempty"`
}

// RotationConfig represents log rotation configuration
type RotationConfig struct {
	MaxSize    string `json:"max_size" yaml:"max_size"`       // e.g., "100MB", "1GB"
	MaxAge     string `json:"max_age" yaml:"max_age"`         // e.g., "7d", "24h"
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // number of backup files
	Compress   bool   `json:"compress" yaml:"compress"`       // gzip rolled files
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stderr",
		Components: map[string]bool{
			string(ComponentApp):        true,
			string(ComponentManifest):   true,
			string(ComponentRendition):  true,
			string(ComponentSegment):    true,
			string(ComponentMux):        true,
			string(ComponentDownloader): true,
			string(ComponentClient):     false,
		},
		ShowCaller: false,
		Timestamp:  true,
	}
}

// LoadConfigFromFile loads configuration from a JSON or YAML file; the
// format is chosen by extension (.yaml/.yml, anything else is JSON).
func LoadConfigFromFile(filename string) (*LogConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultLogConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// ToLoggerConfig converts LogConfig to logger.Config. File outputs are
// opened here.
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}
	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}
	output, err := openOutput(c.Output)
	if err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	components := make(map[Component]bool, len(c.Components))
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}

	return &Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		ShowCaller: c.ShowCaller,
		Timestamp:  c.Timestamp,
	}, nil
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// checkOutput validates an output target without touching the filesystem.
func checkOutput(outputStr string) error {
	switch strings.ToLower(outputStr) {
	case "stdout", "stderr", "null", "none", "":
		return nil
	}
	if strings.HasPrefix(outputStr, "file:") && strings.TrimPrefix(outputStr, "file:") != "" {
		return nil
	}
	return fmt.Errorf("unknown output: %s", outputStr)
}

func openOutput(outputStr string) (io.Writer, error) {
	if err := checkOutput(outputStr); err != nil {
		return nil, err
	}
	switch strings.ToLower(outputStr) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}
	filePath := strings.TrimPrefix(outputStr, "file:")
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// Environment variables read by EnvironmentConfig.
const (
	EnvLevel      = "MEDIAMIRROR_LOG_LEVEL"
	EnvFormat     = "MEDIAMIRROR_LOG_FORMAT"
	EnvOutput     = "MEDIAMIRROR_LOG_OUTPUT"
	EnvCaller     = "MEDIAMIRROR_LOG_CALLER"
	EnvTimestamp  = "MEDIAMIRROR_LOG_TIMESTAMP"
	EnvComponents = "MEDIAMIRROR_LOG_COMPONENTS"
	EnvMaxSize    = "MEDIAMIRROR_LOG_MAX_SIZE"
)

// EnvironmentConfig overlays MEDIAMIRROR_LOG_* variables on base (or on the
// defaults when base is nil). Components listed in MEDIAMIRROR_LOG_COMPONENTS
// replace the configured set.
func EnvironmentConfig(base *LogConfig) *LogConfig {
	config := base
	if config == nil {
		config = DefaultLogConfig()
	}

	if level := os.Getenv(EnvLevel); level != "" {
		config.Level = level
	}
	if format := os.Getenv(EnvFormat); format != "" {
		config.Format = format
	}
	if output := os.Getenv(EnvOutput); output != "" {
		config.Output = output
	}
	if caller := os.Getenv(EnvCaller); caller != "" {
		config.ShowCaller = isTrue(caller)
	}
	if timestamp := os.Getenv(EnvTimestamp); timestamp != "" {
		config.Timestamp = isTrue(timestamp)
	}
	if maxSize := os.Getenv(EnvMaxSize); maxSize != "" {
		if config.Rotation == nil {
			config.Rotation = &RotationConfig{MaxBackups: 3, Compress: true}
		}
		config.Rotation.MaxSize = maxSize
	}
	if components := os.Getenv(EnvComponents); components != "" {
		config.Components = make(map[string]bool)
		for _, comp := range strings.Split(components, ",") {
			if comp = strings.TrimSpace(comp); comp != "" {
				config.Components[comp] = true
			}
		}
	}
	return config
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// ValidateConfig validates the configuration
func (c *LogConfig) ValidateConfig() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	if err := checkOutput(c.Output); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	if c.Rotation != nil {
		if err := c.Rotation.Validate(); err != nil {
			return fmt.Errorf("invalid rotation config: %w", err)
		}
	}
	return nil
}

// Validate validates rotation configuration
func (r *RotationConfig) Validate() error {
	if _, err := parseSize(r.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	if _, err := parseDuration(r.MaxAge); err != nil {
		return fmt.Errorf("invalid max_age: %w", err)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}
	return nil
}

// splitQuantity splits "100MB" into 100 and "MB".
func splitQuantity(s string) (int64, string, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("no number found in %q", s)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number: %w", err)
	}
	return n, strings.TrimSpace(s[i:]), nil
}

// parseSize parses size string (e.g., "100MB", "1GB") to bytes. Empty means 0.
func parseSize(sizeStr string) (int64, error) {
	if strings.TrimSpace(sizeStr) == "" {
		return 0, nil
	}
	num, unit, err := splitQuantity(sizeStr)
	if err != nil {
		return 0, err
	}
	switch strings.ToUpper(unit) {
	case "B", "":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// parseDuration parses "7d", "24h", "30m" or "45s". Empty means 0.
func parseDuration(durationStr string) (time.Duration, error) {
	if strings.TrimSpace(durationStr) == "" {
		return 0, nil
	}
	num, unit, err := splitQuantity(durationStr)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(unit) {
	case "s", "sec":
		return time.Duration(num) * time.Second, nil
	case "m", "min":
		return time.Duration(num) * time.Minute, nil
	case "h", "hour", "hours":
		return time.Duration(num) * time.Hour, nil
	case "d", "day", "days":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
