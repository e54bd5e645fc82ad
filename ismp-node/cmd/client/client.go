// Package client implements the consensus client sub-commands.
package client

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/ismp/config"
	cmdCommon "github.com/oasisprotocol/ismp/ismp-node/cmd/common"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/host"
)

var (
	outputFlags = flag.NewFlagSet("", flag.ContinueOnError)

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "consensus client status and governance",
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "list created consensus clients",
		Args:  cobra.NoArgs,
		RunE:  doList,
	}

	statusCmd = &cobra.Command{
		Use:   "status <client id>",
		Short: "show the status of a consensus client",
		Args:  cobra.ExactArgs(1),
		RunE:  doStatus,
	}

	unfreezeCmd = &cobra.Command{
		Use:   "unfreeze <client id>",
		Short: "unfreeze a consensus client frozen by a fraud proof",
		Args:  cobra.ExactArgs(1),
		RunE:  doUnfreeze,
	}
)

func outputFormat() string {
	return strings.ToLower(viper.GetString(CfgOutputFormat))
}

func validateOutputFormat(cmd *cobra.Command, args []string) error {
	switch outputFormat() {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", viper.GetString(CfgOutputFormat))
	}
}

func withHost(fn func(context.Context, *host.Host) error) error {
	cfg := &config.GlobalConfig
	if err := cfg.Validate(); err != nil {
		return err
	}

	h, err := cmdCommon.NewHost(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	return fn(context.Background(), h)
}

func doList(cmd *cobra.Command, args []string) error {
	return withHost(func(ctx context.Context, h *host.Host) error {
		ids, err := h.ConsensusClients(ctx)
		if err != nil {
			return err
		}
		switch outputFormat() {
		case outputJSON:
			return cmdCommon.PrintJSON(ids)
		default:
			writeClientList(os.Stdout, ids)
			return nil
		}
	})
}

func doStatus(cmd *cobra.Command, args []string) error {
	id, err := api.NewConsensusClientID(args[0])
	if err != nil {
		return err
	}

	return withHost(func(ctx context.Context, h *host.Host) error {
		status, err := h.ConsensusClientStatus(ctx, id)
		if err != nil {
			return err
		}
		switch outputFormat() {
		case outputJSON:
			return cmdCommon.PrintJSON(status)
		default:
			writeClientStatus(os.Stdout, status)
			return nil
		}
	})
}

func doUnfreeze(cmd *cobra.Command, args []string) error {
	id, err := api.NewConsensusClientID(args[0])
	if err != nil {
		return err
	}

	return withHost(func(ctx context.Context, h *host.Host) error {
		if err := h.UnfreezeConsensusClient(ctx, id); err != nil {
			return err
		}
		cmdCommon.Logger().Info("unfroze consensus client",
			"id", id,
		)
		return nil
	})
}

// Register registers the client sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	for _, v := range []*cobra.Command{
		listCmd,
		statusCmd,
	} {
		v.Flags().AddFlagSet(outputFlags)
		v.PreRunE = validateOutputFormat
	}

	for _, v := range []*cobra.Command{
		listCmd,
		statusCmd,
		unfreezeCmd,
	} {
		clientCmd.AddCommand(v)
	}
	parentCmd.AddCommand(clientCmd)
}

func init() {
	outputFlags.String(CfgOutputFormat, outputTable, "output format [table,json]")
	_ = viper.BindPFlags(outputFlags)
}
