package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/webdrop/internal/files"
	"github.com/BioHazard786/webdrop/internal/history"
	"github.com/BioHazard786/webdrop/internal/session"
	"github.com/BioHazard786/webdrop/internal/ui"
)

var sendFlags connFlags

var sendCmd = &cobra.Command{
	Use:     "send <code|link> <files...>",
	Aliases: []string{"s"},
	Short:   "Send files to a waiting receiver",
	Long: `Join the receiver's room and send files to it over WebRTC.

Examples:
  webdrop send ABCD23 file1.txt file2.pdf
  webdrop send https://webdrop.app/r/ABCD23 photo.jpg
  webdrop send --relay --turn turn.example.com ABCD23 file.txt`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(cmd, args[0], args[1:])
	},
}

func sendFiles(cmd *cobra.Command, room string, paths []string) error {
	sp := ui.NewSpinner("Validating files...").Start()
	infos, err := files.ValidateFiles(paths)
	sp.Stop()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(ui.FileTable(lo.Map(infos, func(f files.FileInfo, _ int) ui.FileRow {
		return ui.FileRow{Name: f.Name, Size: f.Size, Type: f.Type}
	})))

	cfg, err := sendFlags.load()
	if err != nil {
		return err
	}
	log := slog.Default()

	s, err := session.NewJoiner(room, sessionOptions(cfg, log))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	fmt.Println()
	if err := start(ctx, s); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := ui.NewLiveView(ui.ModeSend, os.Stdout, cancel)
	view.Start()
	started := time.Now()

	go s.SendFiles(ctx, sources(infos))

	snap, err := follow(ctx, s, view, func(snap session.Snapshot) bool {
		return snap.Status == session.StatusCompleted
	})
	view.Stop()
	record(cfg, history.DirectionSent, snap, log)
	if err != nil {
		return err
	}

	summarize("Send Summary", snap, time.Since(started))
	return nil
}

func sources(infos []files.FileInfo) []session.Source {
	return lo.Map(infos, func(f files.FileInfo, _ int) session.Source {
		return session.Source{Metadata: f.Metadata(), Open: f.Open}
	})
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendFlags.register(sendCmd)
}
