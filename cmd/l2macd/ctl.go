package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cybercoder/l2macd/pkg/config"
	"github.com/cybercoder/l2macd/pkg/ctl"
)

func newCtlCommand(v *viper.Viper) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running l2macd over its control socket",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "timeout for the control request")

	client := func() (*ctl.Client, error) {
		cfg, err := config.Load(v)
		if err != nil {
			return nil, err
		}
		return ctl.NewClient(cfg.ControlSocket), nil
	}

	var asJSON bool
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the port and VLAN caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, timeout)
			defer cancel()
			out, err := c.Dump(ctx, asJSON)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	dump.Flags().BoolVar(&asJSON, "json", false, "print the dump as JSON")

	exit := &cobra.Command{
		Use:   "exit",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, timeout)
			defer cancel()
			return c.Exit(ctx)
		},
	}

	cmd.AddCommand(dump, exit)
	return cmd
}
