package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cybercoder/l2macd/pkg/mactable"
	"github.com/cybercoder/l2macd/pkg/ovs"
)

func newShowCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display switch state",
	}
	cmd.AddCommand(newShowMACTableCommand(v))
	return cmd
}

func newShowMACTableCommand(v *viper.Viper) *cobra.Command {
	var flags struct {
		dynamic bool
		vlans   string
		ports   string
		address string
		count   bool
		timeout time.Duration
	}

	cmd := &cobra.Command{
		Use:   "mac-address-table",
		Short: "Show the L2 MAC address table",
		Example: `  l2macd show mac-address-table
  l2macd show mac-address-table --dynamic --vlan 2,3-10
  l2macd show mac-address-table --port 2-6,lag1 --count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter mactable.Filter
			if flags.dynamic {
				filter.From = ovs.MACFromDynamic
			}
			if flags.vlans != "" {
				ids, err := mactable.ParseVLANList(flags.vlans)
				if err != nil {
					return err
				}
				filter.VLANs = ids
			}
			if flags.ports != "" {
				names, err := mactable.ParsePortList(flags.ports)
				if err != nil {
					return err
				}
				filter.Ports = names
			}
			if flags.address != "" {
				hw, err := net.ParseMAC(flags.address)
				if err != nil {
					return fmt.Errorf("invalid MAC address %q: %w", flags.address, err)
				}
				filter.Address = hw.String()
			}

			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := commandContext(cmd, flags.timeout)
			defer cancel()
			client, err := ovs.CreateOVSclient(ctx, cfg.Database,
				ovs.WithDatabase(cfg.DatabaseName),
				ovs.WithLogger(logger, nil),
				ovs.WithMACTable(),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			entries, err := client.MACEntries(ctx)
			if err != nil {
				return err
			}
			return mactable.Render(cmd.OutOrStdout(), len(entries), filter.Select(entries), flags.count)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.dynamic, "dynamic", false, "show learnt MAC addresses only")
	f.StringVar(&flags.vlans, "vlan", "", "list of VLANs, e.g. 2,3-10")
	f.StringVar(&flags.ports, "port", "", "list of ports, e.g. 2-6,lag1")
	f.StringVar(&flags.address, "address", "", "show a specific MAC address")
	f.BoolVar(&flags.count, "count", false, "show the number of MAC addresses only")
	f.DurationVar(&flags.timeout, "timeout", 10*time.Second, "timeout for reading the database")
	return cmd
}
