package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/webdrop/internal/config"
	"github.com/BioHazard786/webdrop/internal/history"
	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/ui"
)

var (
	historyPath  string
	historyLimit int
	historyPrune time.Duration
)

var errHistoryOff = errors.New("history is disabled")

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past transfers",
	Long: `List recent transfers recorded on this machine.

Examples:
  webdrop history
  webdrop history --limit 50
  webdrop history --prune 720h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory()
	},
}

func showHistory() error {
	cfg, err := config.Load(config.Options{HistoryPath: historyPath})
	if err != nil {
		return transfer.NewError("load config", err)
	}
	if cfg.HistoryPath == "" {
		return errHistoryOff
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return transfer.NewError("open history", err)
	}
	defer store.Close()

	if historyPrune > 0 {
		n, err := store.Prune(time.Now().Add(-historyPrune))
		if err != nil {
			return transfer.NewError("prune history", err)
		}
		ui.PrintSuccessf("Removed %d old transfers", n)
	}

	records, err := store.List(historyLimit)
	if err != nil {
		return transfer.NewError("read history", err)
	}

	fmt.Println()
	fmt.Println(ui.HistoryTable(historyRows(records)))
	return nil
}

func historyRows(records []history.Record) []ui.HistoryRow {
	return lo.Map(records, func(r history.Record, _ int) ui.HistoryRow {
		return ui.HistoryRow{
			When:      r.CreatedAt,
			Direction: r.Direction,
			Room:      r.RoomCode,
			File:      r.FileName,
			Size:      r.Size,
			Status:    r.Status,
		}
	})
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyPath, "history", "", "History database path")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of transfers to show, 0 for all")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete transfers older than this before listing")
}
