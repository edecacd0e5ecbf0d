// Package config loads the l2macd configuration from a YAML file, L2MACD_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cybercoder/l2macd/pkg/log"
	"github.com/cybercoder/l2macd/pkg/ovs"
)

const RunDir = "/var/run/openvswitch"

const (
	KeyConfigFile       = "config"
	KeyDatabase         = "database"
	KeyDatabaseName     = "database_name"
	KeyLockFile         = "lock_file"
	KeyControlSocket    = "control_socket"
	KeyPollInterval     = "poll_interval"
	KeyTxnTimeout       = "txn_timeout"
	KeyReconnectTimeout = "reconnect_timeout"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
)

type Config struct {
	// Database is the OVSDB endpoint, e.g. "unix:/var/run/openvswitch/db.sock".
	Database     string `mapstructure:"database"`
	DatabaseName string `mapstructure:"database_name"`
	// LockFile backs the processing lock shared by all instances.
	LockFile      string `mapstructure:"lock_file"`
	ControlSocket string `mapstructure:"control_socket"`
	// PollInterval bounds how long the loop sleeps without new data.
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	TxnTimeout       time.Duration `mapstructure:"txn_timeout"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
	Log              log.Config    `mapstructure:"log"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabase, "unix:"+filepath.Join(RunDir, "db.sock"))
	v.SetDefault(KeyDatabaseName, ovs.DefaultDatabase)
	v.SetDefault(KeyLockFile, filepath.Join(RunDir, "ops-l2macd.lock"))
	v.SetDefault(KeyControlSocket, filepath.Join(RunDir, "ops-l2macd.ctl"))
	v.SetDefault(KeyPollInterval, 5*time.Second)
	v.SetDefault(KeyTxnTimeout, 10*time.Second)
	v.SetDefault(KeyReconnectTimeout, 30*time.Second)
	v.SetDefault(KeyLogLevel, log.DefaultLevel)
	v.SetDefault(KeyLogFormat, log.FormatConsole)
}

// Load reads the configuration file named by the "config" key, if any, and
// decodes the merged result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("L2MACD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if c.DatabaseName == "" {
		errs = append(errs, errors.New("database_name must not be empty"))
	}
	if c.LockFile == "" {
		errs = append(errs, errors.New("lock_file must not be empty"))
	}
	if c.ControlSocket == "" {
		errs = append(errs, errors.New("control_socket must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.TxnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("txn_timeout must be positive, got %s", c.TxnTimeout))
	}
	if c.ReconnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("reconnect_timeout must not be negative, got %s", c.ReconnectTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
