package cmd

import (
	"fmt"
	"io"
	"os"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
)

// Version is overridden at link time.
var Version = "dev"

// NewRootCmd creates the fleetd command tree. It is called once in main.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fleetd",
		Short:         "Fleet duel arbiter daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().String("config", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fleetd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// newLogger builds the process logger at the given level.
func newLogger(w io.Writer, level string) (cmtlog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	allow, err := cmtlog.AllowLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return cmtlog.NewFilter(cmtlog.NewTMLogger(cmtlog.NewSyncWriter(w)), allow), nil
}
