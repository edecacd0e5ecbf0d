package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cybercoder/l2macd/pkg/config"
	"github.com/cybercoder/l2macd/pkg/daemon"
	"github.com/cybercoder/l2macd/pkg/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "l2macd [DATABASE]",
		Short: "Flush learned MAC addresses when ports or VLANs go down",
		Long: `l2macd watches the switch configuration database and requests a flush of
the learned MAC addresses of every system port whose links all went down and
of every VLAN whose operational state went down.

DATABASE is the OVSDB endpoint, e.g. unix:/var/run/openvswitch/db.sock.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set(config.KeyDatabase, args[0])
			}
			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d := daemon.New(cfg, logger)
			if err := d.Init(ctx); err != nil {
				logger.Error("failed to start", zap.Error(err))
				return err
			}
			return d.Run(ctx)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String(config.KeyConfigFile, "", "path to a YAML configuration file")
	pf.String("database", "", "OVSDB endpoint (default unix:/var/run/openvswitch/db.sock)")
	pf.String("database-name", "", "OVSDB database name (default OpenSwitch)")
	pf.String("unixctl", "", "control socket path (default /var/run/openvswitch/ops-l2macd.ctl)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: console or json")

	f := cmd.Flags()
	f.String("lock-file", "", "processing lock file")
	f.Duration("poll-interval", 0, "maximum time between reconciliation passes")
	f.Duration("txn-timeout", 0, "timeout of a flush transaction")
	f.Duration("reconnect-timeout", 0, "timeout of each reconnection attempt")

	bindFlags(v, pf, map[string]string{
		config.KeyConfigFile:    config.KeyConfigFile,
		config.KeyDatabase:      "database",
		config.KeyDatabaseName:  "database-name",
		config.KeyControlSocket: "unixctl",
		config.KeyLogLevel:      "log-level",
		config.KeyLogFormat:     "log-format",
	})
	bindFlags(v, f, map[string]string{
		config.KeyLockFile:         "lock-file",
		config.KeyPollInterval:     "poll-interval",
		config.KeyTxnTimeout:       "txn-timeout",
		config.KeyReconnectTimeout: "reconnect-timeout",
	})

	cmd.AddCommand(newShowCommand(v), newCtlCommand(v))
	return cmd
}

// bindFlags binds flags to config keys. Unset flags leave the key to the
// config file, the environment or the default.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func setup(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := log.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
