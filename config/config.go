package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tejiriaustin/resource-monitor/logger"
)

const EnvPrefix = "RESOURCEMONITOR"

type Config struct {
	ConfigPath           string        `mapstructure:"-" yaml:"-"`
	Port                 string        `mapstructure:"port" yaml:"port" validate:"required"`
	APIEndpoint          string        `mapstructure:"api_endpoint" yaml:"api_endpoint" validate:"omitempty,url"`
	Interval             time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`
	Resources            []string      `mapstructure:"resources" yaml:"resources" validate:"dive,required"`
	HashAlgorithm        string        `mapstructure:"hash_algorithm" yaml:"hash_algorithm" validate:"oneof=md5 sha1 sha256 sha512 xxhash"`
	UntrackDeleted       bool          `mapstructure:"untrack_deleted" yaml:"untrack_deleted"`
	DatabasePath         string        `mapstructure:"database_path" yaml:"database_path" validate:"required"`
	PidFilePath          string        `mapstructure:"pid_file_path" yaml:"pid_file_path"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	DevMode              bool          `mapstructure:"dev_mode" yaml:"dev_mode"`
	OsqueryExtension     bool          `mapstructure:"osquery_extension" yaml:"osquery_extension"`
	OsquerySocket        string        `mapstructure:"osquery_socket" yaml:"osquery_socket" validate:"required_if=OsqueryExtension true"`
	ControlRatePerMinute int           `mapstructure:"control_rate_per_minute" yaml:"control_rate_per_minute" validate:"gte=0"`
	ControlBurst         int           `mapstructure:"control_burst" yaml:"control_burst" validate:"gte=0"`
	mutex                sync.RWMutex
}

var (
	appConfig     = &Config{}
	configRWMutex sync.RWMutex
)

func GetConfig() *Config {
	configRWMutex.RLock()
	defer configRWMutex.RUnlock()
	return appConfig
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", ":8080")
	v.SetDefault("api_endpoint", "http://localhost:8080")
	v.SetDefault("interval", "500ms")
	v.SetDefault("resources", []string{})
	v.SetDefault("hash_algorithm", "md5")
	v.SetDefault("untrack_deleted", false)
	v.SetDefault("database_path", filepath.Join(os.TempDir(), "resourcemonitor.db"))
	v.SetDefault("pid_file_path", filepath.Join(os.TempDir(), "resourcemonitor.pid"))
	v.SetDefault("log_level", "info")
	v.SetDefault("dev_mode", false)
	v.SetDefault("osquery_extension", false)
	v.SetDefault("osquery_socket", "/var/osquery/osquery.em")
	v.SetDefault("control_rate_per_minute", 60)
	v.SetDefault("control_burst", 10)
}

// NewViper returns a viper instance with the search paths, environment
// binding and defaults used by every command. configFile overrides the search.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.resourcemonitor")
		v.AddConfigPath("/etc/resourcemonitor")
		v.AddConfigPath("/usr/local/etc/resourcemonitor")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// Load reads the config file, if any, and decodes and validates it.
func Load(v *viper.Viper, validate *validator.Validate, log *logger.Logger) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Warn("No config file found. Using defaults.")
	}

	cfg := &Config{}
	if err := decode(v, validate, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper, validate *validator.Validate, cfg *Config) error {
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg.ConfigPath = v.ConfigFileUsed()
	return nil
}

// InitConfig loads the configuration into the process-wide Config. It is
// meant for cobra.OnInitialize; the logger is fetched lazily because it is
// built by an earlier initializer.
func InitConfig(v *viper.Viper, validate *validator.Validate, log func() *logger.Logger) func() {
	return func() {
		cfg, err := Load(v, validate, log())
		if err != nil {
			log().Errorw("Invalid config", "error", err)
			os.Exit(1)
		}

		configRWMutex.Lock()
		defer configRWMutex.Unlock()
		appConfig = cfg
	}
}

// WatchConfig reloads the config file whenever it changes and passes each
// valid revision to onChange. Invalid revisions are logged and ignored.
func WatchConfig(v *viper.Viper, validate *validator.Validate, log *logger.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}

		cfg := &Config{}
		if err := decode(v, validate, cfg); err != nil {
			log.Errorw("Ignoring config change", "file", event.Name, "error", err)
			return
		}

		configRWMutex.Lock()
		appConfig = cfg
		configRWMutex.Unlock()

		log.Infow("Config reloaded", "file", event.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}

func (c *Config) WritePidFile(pid int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.PidFilePath == "" {
		c.PidFilePath = filepath.Join(os.TempDir(), "resourcemonitor.pid")
	}

	if err := os.WriteFile(c.PidFilePath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func (c *Config) ReadPidFile() (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.PidFilePath == "" {
		return 0, fmt.Errorf("PID file path not set")
	}

	content, err := os.ReadFile(c.PidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("daemon not running")
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

func (c *Config) RemovePidFile() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.PidFilePath == "" {
		return nil
	}

	err := os.Remove(c.PidFilePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}
