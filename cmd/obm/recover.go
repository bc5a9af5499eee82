package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saiputravu/obm/internal/config"
	"github.com/saiputravu/obm/internal/recovery"
)

func newRecoverOnlyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover-only",
		Short: "Replay the WAL and report the recovered book state without serving traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			result, err := recovery.Recover(cfg.WALFilePath)
			if err != nil {
				return err
			}
			log.Info().
				Int64("last_lsn", result.LastLSN).
				Int("trades_replayed", len(result.Trades)).
				Int("orders_resting", result.Book.Len()).
				Msg("recover-only: replay complete")
			return nil
		},
	}
}
