package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Threshold  float64
	Timeout    string
	Retries    int
	NoHistory  bool
	Protocol   string
	Verbose    bool
	// AllowCommands is a comma-separated execution allowlist.
	AllowCommands string
}

type Settings struct {
	OutputMode       string
	FuzzyThreshold   float64
	SuggestionLimit  int
	MinInputChars    int
	DebounceInterval time.Duration
	Timeout          time.Duration
	Retries          int
	HistoryEnabled   bool
	HistoryPath      string
	HistoryLockPath  string
	HistoryMax       int
	ActiveProtocol   string
	Defaults         map[string]string
	Priority         []string
	AllowCommands    []string
	Plugins          map[string]PluginSettings
	OneInchAPIKey    string
	UniswapAPIKey    string
	LifiAPIKey       string
}

// PluginSettings is the per-plugin block from the config file. A nil Enabled
// means the plugin's own default applies.
type PluginSettings struct {
	Enabled *bool
	Options map[string]string
}

type fileConfig struct {
	Output string `yaml:"output"`
	Fuzzy  struct {
		Threshold *float64 `yaml:"threshold"`
	} `yaml:"fuzzy"`
	Autocomplete struct {
		MinChars *int   `yaml:"min_chars"`
		Limit    *int   `yaml:"limit"`
		Debounce string `yaml:"debounce"`
	} `yaml:"autocomplete"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	History struct {
		Enabled    *bool  `yaml:"enabled"`
		Path       string `yaml:"path"`
		LockPath   string `yaml:"lock_path"`
		MaxEntries *int   `yaml:"max_entries"`
	} `yaml:"history"`
	Preferences struct {
		Active   string            `yaml:"active"`
		Defaults map[string]string `yaml:"defaults"`
		Priority []string          `yaml:"priority"`
	} `yaml:"preferences"`
	Plugins map[string]struct {
		Enabled *bool             `yaml:"enabled"`
		Options map[string]string `yaml:"options"`
	} `yaml:"plugins"`
	Providers struct {
		OneInch struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"oneinch"`
		Uniswap struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"uniswap"`
		Lifi struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"lifi"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.FuzzyThreshold <= 0 || settings.FuzzyThreshold > 1 {
		settings.FuzzyThreshold = 0.3
	}
	if settings.SuggestionLimit <= 0 {
		settings.SuggestionLimit = 8
	}
	if settings.MinInputChars <= 0 {
		settings.MinInputChars = 2
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.HistoryMax <= 0 {
		settings.HistoryMax = 500
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	historyPath, lockPath, err := defaultHistoryPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       "json",
		FuzzyThreshold:   0.3,
		SuggestionLimit:  8,
		MinInputChars:    2,
		DebounceInterval: 150 * time.Millisecond,
		Timeout:          10 * time.Second,
		Retries:          2,
		HistoryEnabled:   true,
		HistoryPath:      historyPath,
		HistoryLockPath:  lockPath,
		HistoryMax:       500,
		Defaults:         map[string]string{},
		Plugins:          map[string]PluginSettings{},
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "defiterm", "config.yaml"), nil
}

func defaultHistoryPaths() (string, string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, "defiterm")
	return filepath.Join(dir, "history.db"), filepath.Join(dir, "history.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Fuzzy.Threshold != nil {
		settings.FuzzyThreshold = *cfg.Fuzzy.Threshold
	}
	if cfg.Autocomplete.MinChars != nil {
		settings.MinInputChars = *cfg.Autocomplete.MinChars
	}
	if cfg.Autocomplete.Limit != nil {
		settings.SuggestionLimit = *cfg.Autocomplete.Limit
	}
	if cfg.Autocomplete.Debounce != "" {
		d, err := time.ParseDuration(cfg.Autocomplete.Debounce)
		if err != nil {
			return fmt.Errorf("config autocomplete.debounce: %w", err)
		}
		settings.DebounceInterval = d
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.History.Enabled != nil {
		settings.HistoryEnabled = *cfg.History.Enabled
	}
	if cfg.History.Path != "" {
		settings.HistoryPath = cfg.History.Path
	}
	if cfg.History.LockPath != "" {
		settings.HistoryLockPath = cfg.History.LockPath
	}
	if cfg.History.MaxEntries != nil {
		settings.HistoryMax = *cfg.History.MaxEntries
	}
	if cfg.Preferences.Active != "" {
		settings.ActiveProtocol = cfg.Preferences.Active
	}
	for id, protocol := range cfg.Preferences.Defaults {
		settings.Defaults[id] = protocol
	}
	if len(cfg.Preferences.Priority) > 0 {
		settings.Priority = append([]string(nil), cfg.Preferences.Priority...)
	}
	for name, block := range cfg.Plugins {
		settings.Plugins[strings.ToLower(name)] = PluginSettings{
			Enabled: block.Enabled,
			Options: block.Options,
		}
	}
	if cfg.Providers.OneInch.APIKey != "" {
		settings.OneInchAPIKey = cfg.Providers.OneInch.APIKey
	}
	if cfg.Providers.OneInch.APIKeyEnv != "" {
		settings.OneInchAPIKey = os.Getenv(cfg.Providers.OneInch.APIKeyEnv)
	}
	if cfg.Providers.Uniswap.APIKey != "" {
		settings.UniswapAPIKey = cfg.Providers.Uniswap.APIKey
	}
	if cfg.Providers.Uniswap.APIKeyEnv != "" {
		settings.UniswapAPIKey = os.Getenv(cfg.Providers.Uniswap.APIKeyEnv)
	}
	if cfg.Providers.Lifi.APIKey != "" {
		settings.LifiAPIKey = cfg.Providers.Lifi.APIKey
	}
	if cfg.Providers.Lifi.APIKeyEnv != "" {
		settings.LifiAPIKey = os.Getenv(cfg.Providers.Lifi.APIKeyEnv)
	}

	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.ToLower(strings.TrimSpace(part))
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("DEFITERM_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("DEFITERM_FUZZY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.FuzzyThreshold = f
		}
	}
	if v := os.Getenv("DEFITERM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("DEFITERM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("DEFITERM_NO_HISTORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.HistoryEnabled = !b
		}
	}
	if v := os.Getenv("DEFITERM_HISTORY_PATH"); v != "" {
		settings.HistoryPath = v
	}
	if v := os.Getenv("DEFITERM_HISTORY_LOCK_PATH"); v != "" {
		settings.HistoryLockPath = v
	}
	if v := os.Getenv("DEFITERM_HISTORY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.HistoryMax = n
		}
	}
	if v := os.Getenv("DEFITERM_DEFAULT_PROTOCOL"); v != "" {
		settings.ActiveProtocol = strings.ToLower(v)
	}
	if v := os.Getenv("DEFITERM_1INCH_API_KEY"); v != "" {
		settings.OneInchAPIKey = v
	}
	if v := os.Getenv("DEFITERM_UNISWAP_API_KEY"); v != "" {
		settings.UniswapAPIKey = v
	}
	if v := os.Getenv("DEFITERM_LIFI_API_KEY"); v != "" {
		settings.LifiAPIKey = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Threshold > 0 {
		settings.FuzzyThreshold = flags.Threshold
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoHistory {
		settings.HistoryEnabled = false
	}
	if strings.TrimSpace(flags.Protocol) != "" {
		settings.ActiveProtocol = strings.ToLower(strings.TrimSpace(flags.Protocol))
	}
	if strings.TrimSpace(flags.AllowCommands) != "" {
		settings.AllowCommands = splitCSV(flags.AllowCommands)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
