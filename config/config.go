// Package config loads the server configuration from defaults, an optional
// YAML file, a .env file and HR_-prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment override, e.g. HR_SERVER_PORT.
const EnvPrefix = "HR"

type Configuration struct {
	Server  Server  `mapstructure:"server" json:"server" yaml:"server"`
	Storage Storage `mapstructure:"storage" json:"storage" yaml:"storage"`
	Log     Log     `mapstructure:"log" json:"log" yaml:"log"`
	Leave   Leave   `mapstructure:"leave" json:"leave" yaml:"leave"`
	Authz   Authz   `mapstructure:"authz" json:"authz" yaml:"authz"`
	Metrics Metrics `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Seed    Seed    `mapstructure:"seed" json:"seed" yaml:"seed"`
}

type Server struct {
	Host            string        `mapstructure:"host" json:"host" yaml:"host"`
	Port            int           `mapstructure:"port" json:"port" yaml:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins" json:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// StaticDir holds the built front end. Empty or missing serves a landing page.
	StaticDir string `mapstructure:"static_dir" json:"static_dir" yaml:"static_dir"`
}

// Addr is host:port for http.Server.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Storage struct {
	// DBPath is the SQLite file. ":memory:" keeps nothing across restarts.
	DBPath       string        `mapstructure:"db_path" json:"db_path" yaml:"db_path"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

type Log struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
}

type Leave struct {
	DefaultEntitlement int `mapstructure:"default_entitlement" json:"default_entitlement" yaml:"default_entitlement"`
	RecentWindow       int `mapstructure:"recent_window" json:"recent_window" yaml:"recent_window"`
	UserInboxCap       int `mapstructure:"user_inbox_cap" json:"user_inbox_cap" yaml:"user_inbox_cap"`
	GlobalFeedCap      int `mapstructure:"global_feed_cap" json:"global_feed_cap" yaml:"global_feed_cap"`
}

type Authz struct {
	// AllowGuestMutations lets principals without a directory record
	// apply and decide.
	AllowGuestMutations bool     `mapstructure:"allow_guest_mutations" json:"allow_guest_mutations" yaml:"allow_guest_mutations"`
	SelfRegisterRoles   []string `mapstructure:"self_register_roles" json:"self_register_roles" yaml:"self_register_roles"`
}

type Metrics struct {
	Enabled   bool      `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Namespace string    `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	Buckets   []float64 `mapstructure:"buckets" json:"buckets" yaml:"buckets"`
}

type Seed struct {
	// Scenario is loaded into an empty database at startup. Empty disables it.
	Scenario string `mapstructure:"scenario" json:"scenario" yaml:"scenario"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.static_dir", "./web/dist")

	v.SetDefault("storage.db_path", "hr.db")
	v.SetDefault("storage.write_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")

	v.SetDefault("leave.default_entitlement", 15)
	v.SetDefault("leave.recent_window", 5)
	v.SetDefault("leave.user_inbox_cap", 50)
	v.SetDefault("leave.global_feed_cap", 100)

	v.SetDefault("authz.allow_guest_mutations", true)
	v.SetDefault("authz.self_register_roles", []string{"employee", "manager"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "hr")
	v.SetDefault("metrics.buckets", []float64{})

	v.SetDefault("seed.scenario", "")
}

// Options control where Load looks.
type Options struct {
	// ConfigFile is an optional YAML file. Missing is an error only when set.
	ConfigFile string
	// EnvFile is loaded with godotenv before env overrides are read.
	// The default ".env" is skipped silently when absent.
	EnvFile string
	// OnChange is called with the reloaded configuration when ConfigFile
	// changes on disk. Nil disables watching.
	OnChange func(*Configuration)
	// Logger reports rejected reloads. Defaults to the global logger at
	// reload time.
	Logger *zap.Logger
}

// Loader holds the live configuration.
type Loader struct {
	v *viper.Viper

	mu   sync.RWMutex
	conf *Configuration
}

// Load builds the configuration once.
func Load(opts Options) (*Loader, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	l := &Loader{v: v}
	conf, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.conf = conf

	if opts.ConfigFile != "" && opts.OnChange != nil {
		v.OnConfigChange(func(in fsnotify.Event) {
			logger := opts.Logger
			if logger == nil {
				logger = zap.L().Named("config")
			}
			conf, err := l.decode()
			if err != nil {
				logger.Error("config reload rejected, keeping previous values",
					zap.String("file", in.Name),
					zap.Error(err),
				)
				return
			}
			logger.Info("config file changed", zap.String("file", in.Name))
			l.mu.Lock()
			l.conf = conf
			l.mu.Unlock()
			opts.OnChange(conf)
		})
		v.WatchConfig()
	}
	return l, nil
}

// Current is the latest successfully decoded configuration.
func (l *Loader) Current() *Configuration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conf
}

func (l *Loader) decode() (*Configuration, error) {
	var conf Configuration
	if err := l.v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// Validate rejects values the server cannot start with.
func (c *Configuration) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return errors.New("storage.db_path: required")
	}
	if c.Leave.DefaultEntitlement < 0 {
		return fmt.Errorf("leave.default_entitlement: %d is negative", c.Leave.DefaultEntitlement)
	}
	if c.Leave.RecentWindow < 1 {
		return fmt.Errorf("leave.recent_window: %d must be at least 1", c.Leave.RecentWindow)
	}
	return nil
}
