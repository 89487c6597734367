package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/webdrop/internal/files"
	"github.com/BioHazard786/webdrop/internal/history"
	"github.com/BioHazard786/webdrop/internal/session"
	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/ui"
	"github.com/BioHazard786/webdrop/internal/utils"
)

var (
	receiveFlags connFlags
	flagZip      bool
	flagDir      string
)

var receiveCmd = &cobra.Command{
	Use:     "receive",
	Aliases: []string{"r"},
	Short:   "Create a room and receive files",
	Long: `Create a room and wait for a sender. Share the printed code or link;
the sender joins from a terminal with "webdrop send" or from the web app.

Examples:
  webdrop receive
  webdrop receive --dir ~/Downloads
  webdrop receive --zip --relay --turn turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return receiveFiles(cmd)
	},
}

func receiveFiles(cmd *cobra.Command) error {
	cfg, err := receiveFlags.load()
	if err != nil {
		return err
	}
	log := slog.Default()

	outDir, cleanup, err := prepareOutputDir(flagZip, flagDir)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	opts := sessionOptions(cfg, log)
	opts.Saver = files.DiskSaver{Dir: outDir}
	s := session.NewHost(opts)
	defer s.Close()

	ctx := cmd.Context()
	fmt.Println()
	if err := start(ctx, s); err != nil {
		return err
	}

	code := s.Snapshot().RoomCode
	ui.RenderRoomBox(code, cfg.GetRoomLink(code))
	if !flagZip {
		ui.PrintInfof("Saving files to %s", outDir)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := ui.NewLiveView(ui.ModeReceive, os.Stdout, cancel)
	view.Start()
	started := time.Now()

	// done once the sender has delivered everything and left
	snap, err := follow(ctx, s, view, func(snap session.Snapshot) bool {
		return snap.Status == session.StatusCompleted && !snap.PeerConnected
	})
	view.Stop()
	record(cfg, history.DirectionReceived, snap, log)
	if err != nil {
		return err
	}

	summarize("Receive Summary", snap, time.Since(started))
	return finalizeOutput(flagZip, flagDir, savedPaths(snap))
}

// prepareOutputDir picks where received files go. In zip mode that is a
// temporary directory removed by cleanup.
func prepareOutputDir(zipMode bool, dir string) (string, func(), error) {
	if !zipMode {
		if dir == "" {
			dir = "."
		}
		return dir, nil, nil
	}

	tempDir, err := os.MkdirTemp("", "webdrop-receive-*")
	if err != nil {
		return "", nil, transfer.NewError("create temp dir", err)
	}
	return tempDir, func() { os.RemoveAll(tempDir) }, nil
}

func savedPaths(snap session.Snapshot) []string {
	return lo.FilterMap(snap.Files, func(f session.FileProgress, _ int) (string, bool) {
		return f.SavedAs, f.Status == session.FileCompleted && f.SavedAs != ""
	})
}

// finalizeOutput zips the saved files into dir when zipping.
func finalizeOutput(zipMode bool, dir string, paths []string) error {
	if !zipMode || len(paths) == 0 {
		return nil
	}

	zipName := fmt.Sprintf("webdrop-download-%d.zip", time.Now().UnixMilli())
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return transfer.NewError("create output dir", err)
		}
		zipName = filepath.Join(dir, zipName)
	}

	fmt.Println()
	sp := ui.NewWaitingSpinner("Zipping files...").Start()
	if err := utils.ZipFiles(zipName, paths); err != nil {
		sp.Stop()
		return transfer.NewError("zip files", err)
	}
	sp.Success(fmt.Sprintf("Files zipped to %s", zipName))
	return nil
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveFlags.register(receiveCmd)
	receiveCmd.Flags().BoolVarP(&flagZip, "zip", "z", false, "Zip received files")
	receiveCmd.Flags().StringVarP(&flagDir, "dir", "d", "", "Directory to save received files")
}
