package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full autostudy.yaml configuration. Every field has a working
// default except the account credentials, which must come from the file or
// from AUTOSTUDY_USERNAME / AUTOSTUDY_PASSWORD.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Platform    PlatformConfig    `yaml:"platform"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Registry    RegistryConfig    `yaml:"registry"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Playback    PlaybackConfig    `yaml:"playback"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PlatformConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	// CaptchaCommand is an external solver: it receives the challenge image
	// on stdin and must print the code on stdout.
	CaptchaCommand string `yaml:"captcha_command"`
}

type CredentialsConfig struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	CipherKey string `yaml:"cipher_key"`
}

type RegistryConfig struct {
	DBPath string `yaml:"db_path"`
}

type SchedulerConfig struct {
	Workers        int           `yaml:"workers"`
	MaxQueue       int           `yaml:"max_queue"`
	MaxInFlight    int           `yaml:"max_in_flight"`
	SubmitInterval time.Duration `yaml:"submit_interval"`
	SubmitTimeout  time.Duration `yaml:"submit_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	RetryBase      time.Duration `yaml:"retry_base"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	RetryAttempts  int           `yaml:"retry_attempts"`
}

type PlaybackConfig struct {
	Cadence       time.Duration `yaml:"cadence"`
	CadenceJitter float64       `yaml:"cadence_jitter"`
	SeekChance    float64       `yaml:"seek_chance"`
	PauseChance   float64       `yaml:"pause_chance"`
	PauseDuration time.Duration `yaml:"pause_duration"`
}

// Load reads the YAML file at path when it exists, fills the gaps with
// defaults and applies AUTOSTUDY_* overrides. A missing file is not an
// error; everything then comes from defaults and the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8089"
	}
	if cfg.Platform.BaseURL == "" {
		cfg.Platform.BaseURL = "https://edu.nxgbjy.org.cn"
	}
	if cfg.Platform.Token == "" {
		cfg.Platform.Token = "3ee5648315e911e7b2f200fff6167960"
	}
	if cfg.Platform.Timeout <= 0 {
		cfg.Platform.Timeout = 30 * time.Second
	}
	if cfg.Credentials.CipherKey == "" {
		cfg.Credentials.CipherKey = "CCR!@#$%"
	}
	if cfg.Registry.DBPath == "" {
		cfg.Registry.DBPath = "autostudy.db"
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 3
	}
	if cfg.Scheduler.MaxQueue <= 0 {
		cfg.Scheduler.MaxQueue = 256
	}
	if cfg.Scheduler.MaxInFlight <= 0 {
		cfg.Scheduler.MaxInFlight = 2
	}
	if cfg.Scheduler.SubmitInterval <= 0 {
		cfg.Scheduler.SubmitInterval = 2 * time.Second
	}
	if cfg.Scheduler.SubmitTimeout <= 0 {
		cfg.Scheduler.SubmitTimeout = 30 * time.Second
	}
	if cfg.Scheduler.DrainTimeout <= 0 {
		cfg.Scheduler.DrainTimeout = 30 * time.Second
	}
	if cfg.Scheduler.RetryBase <= 0 {
		cfg.Scheduler.RetryBase = 2 * time.Second
	}
	if cfg.Scheduler.RetryMaxDelay <= 0 {
		cfg.Scheduler.RetryMaxDelay = 2 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts <= 0 {
		cfg.Scheduler.RetryAttempts = 5
	}
	if cfg.Playback.Cadence <= 0 {
		cfg.Playback.Cadence = 30 * time.Second
	}
	if cfg.Playback.CadenceJitter <= 0 {
		cfg.Playback.CadenceJitter = 0.15
	}
	if cfg.Playback.SeekChance < 0 {
		cfg.Playback.SeekChance = 0
	}
	if cfg.Playback.PauseChance < 0 {
		cfg.Playback.PauseChance = 0
	}
	if cfg.Playback.PauseDuration <= 0 {
		cfg.Playback.PauseDuration = 10 * time.Second
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = envOr("AUTOSTUDY_ADDR", cfg.Server.Addr)
	cfg.Platform.BaseURL = envOr("AUTOSTUDY_BASE_URL", cfg.Platform.BaseURL)
	cfg.Platform.Token = envOr("AUTOSTUDY_TOKEN", cfg.Platform.Token)
	cfg.Platform.CaptchaCommand = envOr("AUTOSTUDY_CAPTCHA_CMD", cfg.Platform.CaptchaCommand)
	cfg.Credentials.Username = envOr("AUTOSTUDY_USERNAME", cfg.Credentials.Username)
	cfg.Credentials.Password = envOr("AUTOSTUDY_PASSWORD", cfg.Credentials.Password)
	cfg.Registry.DBPath = envOr("AUTOSTUDY_DB_PATH", cfg.Registry.DBPath)
}

// Validate rejects configurations the run could not survive. Credentials are
// checked here rather than at login time so a typo fails fast.
func (c *Config) Validate() error {
	if c.Credentials.Username == "" {
		return fmt.Errorf("config: credentials.username is required (or AUTOSTUDY_USERNAME)")
	}
	if c.Credentials.Password == "" {
		return fmt.Errorf("config: credentials.password is required (or AUTOSTUDY_PASSWORD)")
	}
	if len(c.Credentials.CipherKey) != 8 {
		return fmt.Errorf("config: credentials.cipher_key must be exactly 8 bytes")
	}
	if c.Playback.CadenceJitter >= 1 {
		return fmt.Errorf("config: playback.cadence_jitter must be below 1")
	}
	if c.Playback.SeekChance+c.Playback.PauseChance >= 1 {
		return fmt.Errorf("config: playback seek_chance plus pause_chance must stay below 1")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
