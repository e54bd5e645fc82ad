// Package message implements the message sub-commands.
package message

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/config"
	cmdCommon "github.com/oasisprotocol/ismp/ismp-node/cmd/common"
	"github.com/oasisprotocol/ismp/ismp/api"
)

const (
	// CfgMessageFormat is the encoding of message files.
	CfgMessageFormat = "message.format"
	// CfgDumpMetrics enables writing the collected metrics to stderr once
	// all messages were processed.
	CfgDumpMetrics = "message.dump_metrics"

	formatCBOR = "cbor"
	formatJSON = "json"
)

var (
	messageFlags = flag.NewFlagSet("", flag.ContinueOnError)

	messageCmd = &cobra.Command{
		Use:   "message",
		Short: "message processing",
	}

	processCmd = &cobra.Command{
		Use:   "process <message file>...",
		Short: "process messages in order against the local host",
		Args:  cobra.MinimumNArgs(1),
		RunE:  doProcess,
	}
)

// LoadMessage reads a message from a file in the given encoding.
func LoadMessage(path, format string) (*api.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file: %w", err)
	}

	var msg api.Message
	switch strings.ToLower(format) {
	case formatCBOR:
		err = cbor.Unmarshal(raw, &msg)
	case formatJSON:
		err = json.Unmarshal(raw, &msg)
	default:
		return nil, fmt.Errorf("unsupported message format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode message '%s': %w", path, err)
	}
	return &msg, nil
}

func doProcess(cmd *cobra.Command, args []string) error {
	logger := cmdCommon.Logger()
	cfg := &config.GlobalConfig

	if err := cfg.Validate(); err != nil {
		return err
	}

	h, err := cmdCommon.NewHost(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	ctx := context.Background()
	bo := cmdCommon.NewBackOff(&cfg.Host.Retry)
	for _, path := range args {
		msg, err := LoadMessage(path, viper.GetString(CfgMessageFormat))
		if err != nil {
			return err
		}

		var result *api.MessageResult
		switch bo {
		case nil:
			result, err = h.Process(ctx, msg)
		default:
			result, err = h.ProcessWithRetry(ctx, msg, bo)
		}
		if err != nil {
			logger.Error("message rejected",
				"err", err,
				"file", path,
				"kind", msg.Kind(),
			)
			return err
		}

		if err = cmdCommon.PrintJSON(result); err != nil {
			return err
		}
		if dispatchErr := result.Dispatched().Err(); dispatchErr != nil {
			logger.Warn("some items were not dispatched",
				"err", dispatchErr,
				"file", path,
			)
		}
	}

	if viper.GetBool(CfgDumpMetrics) {
		if err = cmdCommon.DumpMetrics(os.Stderr, prometheus.DefaultGatherer); err != nil {
			return err
		}
	}

	return cmdCommon.PushMetrics(&cfg.Metrics)
}

// Register registers the message sub-command and all of its children.
func Register(parentCmd *cobra.Command) {
	processCmd.Flags().AddFlagSet(messageFlags)
	messageCmd.AddCommand(processCmd)
	parentCmd.AddCommand(messageCmd)
}

func init() {
	messageFlags.String(CfgMessageFormat, formatCBOR, "message file encoding [cbor,json]")
	messageFlags.Bool(CfgDumpMetrics, false, "write collected metrics to stderr after processing")
	_ = viper.BindPFlags(messageFlags)
}
