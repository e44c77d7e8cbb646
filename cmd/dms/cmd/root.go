// Package cmd implements the dms command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kksharma1618/mediaserver/dlna/dms"
)

// cfgFile is the --config flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "dms",
	Short:   "UPnP/DLNA media server",
	Version: dms.Version,
	Long: `dms serves local directories, or a remote content provider, to UPnP
and DLNA renderers on the network: smart TVs, consoles and media players.

Files the renderer can't play as they are are transcoded with ffmpeg, either
as a single MPEG-TS stream or as HLS.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dms.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")

	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
