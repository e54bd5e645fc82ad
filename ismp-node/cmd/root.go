// Package cmd implements the commands for the ismp-node executable.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oasisprotocol/ismp/ismp-node/cmd/client"
	cmdCommon "github.com/oasisprotocol/ismp/ismp-node/cmd/common"
	"github.com/oasisprotocol/ismp/ismp-node/cmd/debug"
	"github.com/oasisprotocol/ismp/ismp-node/cmd/message"
)

var rootCmd = &cobra.Command{
	Use:   "ismp-node",
	Short: "ISMP message verification node",
}

// RootCommand returns the root (top level) cobra.Command.
func RootCommand() *cobra.Command {
	return rootCmd
}

// Execute spawns the main entry point after handling the config file
// and command line arguments.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(cmdCommon.InitConfig)

	rootCmd.PersistentFlags().AddFlagSet(cmdCommon.RootFlags)

	// Register all of the sub-commands.
	for _, v := range []func(*cobra.Command){
		client.Register,
		debug.Register,
		message.Register,
	} {
		v(rootCmd)
	}
}
