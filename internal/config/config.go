package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"ohnitiel/upsql/internal/locale"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Profile is one service account the CLI can query.
type Profile struct {
	Name     string `toml:"-"`
	APIURL   string `toml:"api_url"`
	Token    string `toml:"token"`
	Timeout  string `toml:"timeout"`
	Discover *bool  `toml:"discover"`
	Disabled bool   `toml:"disabled"`
}

type LoggerConfigs struct {
	ConsoleLevel  string `toml:"console_level"`
	ConsoleOutput string `toml:"console_output"`
	FileLevel     string `toml:"file_level"`
	FileOutput    string `toml:"file_output"`
}

type PathConfigs struct {
	Profiles string `toml:"profiles"`
	Env      string `toml:"env"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type CacheConfig struct {
	UseCache   bool        `toml:"use_cache"`
	TimeToLive uint16      `toml:"time_to_live"`
	Backend    string      `toml:"backend"`
	Redis      RedisConfig `toml:"redis"`
	MaxAge     time.Duration
}

type MetricsConfig struct {
	File string `toml:"file"`
}

type Config struct {
	Cache             CacheConfig         `toml:"cache"`
	DefaultProfile    string              `toml:"default_profile"`
	Locale            string              `toml:"locale"`
	MaxWorkers        uint8               `toml:"max_workers"`
	MaxRetries        uint8               `toml:"max_retries"`
	Timeout           string              `toml:"timeout"`
	PollInterval      string              `toml:"poll_interval"`
	Discover          bool                `toml:"discover"`
	Paths             PathConfigs         `toml:"paths"`
	Profiles          map[string]*Profile `toml:"-"`
	Logging           LoggerConfigs       `toml:"logger"`
	Metrics           MetricsConfig       `toml:"metrics"`
	ProfileColumnName string              `toml:"profile_column_name"`
}

func NewConfig() *Config {
	return &Config{
		Locale:     "auto",
		MaxWorkers: 4,
		MaxRetries: 3,
		Timeout:    "60s",
		Paths: PathConfigs{
			Profiles: "./config/profiles.toml",
			Env:      ".env",
		},
		Cache: CacheConfig{
			TimeToLive: 300,
			Backend:    "memory",
		},
		Logging: LoggerConfigs{
			ConsoleLevel:  "info",
			ConsoleOutput: "stderr",
		},
		ProfileColumnName: "profile",
	}
}

// Load reads the main configuration file and the profiles file it points
// to. Missing .env files are ignored.
func Load(path string) (*Config, error) {
	conf := NewConfig()

	_, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, fmt.Errorf("Error loading config TOML: %w", err)
	}
	conf.Cache.MaxAge = time.Duration(conf.Cache.TimeToLive) * time.Second

	if err := conf.validate(); err != nil {
		return nil, err
	}

	if err := conf.loadProfiles(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) GetProfile(name string) *Profile {
	return c.Profiles[name]
}

// EnabledProfiles returns the enabled profile names, sorted. When names is
// not empty only those are considered; unknown names are an error.
func (c *Config) EnabledProfiles(names []string) ([]string, error) {
	for _, name := range names {
		if _, ok := c.Profiles[name]; !ok {
			return nil, fmt.Errorf("unknown profile %q", name)
		}
	}

	enabled := make([]string, 0, len(c.Profiles))
	for name, p := range c.Profiles {
		if p.Disabled {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		enabled = append(enabled, name)
	}
	sort.Strings(enabled)

	return enabled, nil
}

// ProfileTimeout is the profile's own timeout, or the global one.
func (c *Config) ProfileTimeout(p *Profile) string {
	if p.Timeout != "" {
		return p.Timeout
	}
	return c.Timeout
}

func (c *Config) ProfileDiscover(p *Profile) bool {
	if p.Discover != nil {
		return *p.Discover
	}
	return c.Discover
}

func (c *Config) PollIntervalDuration() (time.Duration, error) {
	if c.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval: %w", err)
	}
	return d, nil
}

func (c *Config) validate() error {
	if err := c.validateLoggerConfig(); err != nil {
		return err
	}

	backends := []string{"memory", "redis"}
	if !slices.Contains(backends, c.Cache.Backend) {
		return fmt.Errorf("%s is not in valid cache backends [%v]!", c.Cache.Backend, backends)
	}

	if c.MaxWorkers == 0 {
		c.MaxWorkers = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}

	return nil
}

func (c *Config) validateLoggerConfig() error {
	consoleOutputs := []string{"stderr", "stdout"}

	if !slices.Contains(consoleOutputs, c.Logging.ConsoleOutput) {
		return fmt.Errorf("%s is not in valid console outputs [%v]!", c.Logging.ConsoleOutput, consoleOutputs)
	}

	return nil
}

func (c *Config) loadProfiles() error {
	var profiles map[string]*Profile

	if c.Paths.Env != "" {
		err := godotenv.Load(c.Paths.Env)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("Error loading .env file: %w", err)
		}
	}

	_, err := toml.DecodeFile(c.Paths.Profiles, &profiles)
	if err != nil {
		return fmt.Errorf("Error loading profiles TOML: %w", err)
	}

	for name, p := range profiles {
		p.Name = name
		p.Token = expandEnv(p.Token)
		p.APIURL = expandEnv(p.APIURL)

		if p.APIURL == "" {
			slog.Warn(locale.L.Logs.NoAPIURL, "profile", name)
			p.Disabled = true
		}
		if p.Disabled {
			slog.Debug(locale.L.Logs.ProfileDisabled, "profile", name)
		}
	}

	c.Profiles = profiles

	return nil
}

// expandEnv resolves values written as ${VAR}. Anything else is returned
// unchanged.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
		return os.Getenv(envVar)
	}
	return value
}
