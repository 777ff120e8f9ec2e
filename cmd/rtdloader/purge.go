package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/rtd-loader/internal/config"
	"github.com/rickgao/rtd-loader/internal/database"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/store"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete provisional rows left by an interrupted session",
	Long: `Purge deletes every row still flagged provisional, for every enabled
family. Provisional rows carry the uncorrected capture time, so they are
not limited to one date. Use it after a session that ended before the
clock offset could be established.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format).
		With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database.Market, "rtdloader-purge", logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	st := store.NewPG(pool, cfg.Session.Timezone)
	enabled := familyConfigs(cfg.Feed)

	var total int64
	for _, family := range model.Families() {
		if _, ok := enabled[family]; !ok {
			continue
		}
		n, err := st.Purge(ctx, family)
		if err != nil {
			return fmt.Errorf("purge %s: %w", family, err)
		}
		logger.Info("purged provisional rows", "family", family, "rows", n)
		total += n
	}

	fmt.Fprintf(cmd.OutOrStdout(), "purged %d provisional rows\n", total)
	return nil
}
