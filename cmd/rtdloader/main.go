// rtdloader subscribes to an RTD terminal feed and persists the changes of
// quotes, order books and broker rankings for one trading session.
//
// Usage:
//
//	rtdloader run --config configs/rtdloader.yaml
//	rtdloader purge --config configs/rtdloader.yaml
//	rtdloader version
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rtdloader",
	Short: "RTD market data loader",
	Long: `rtdloader connects to an RTD terminal, subscribes to quotes, level 2 books
and broker rankings for the configured instruments, and writes every change
to PostgreSQL.

Rows written before the terminal clock offset is known are provisional and
are rewritten once the offset is established.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/rtdloader.yaml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
