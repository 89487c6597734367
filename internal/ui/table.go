package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/webdrop/internal/utils"
)

// FileRow is one file in the file table.
type FileRow struct {
	Name string
	Size int64
	Type string
}

// FileTable renders the files about to be sent.
func FileTable(rows []FileRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No files")
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			strconv.Itoa(i + 1),
			utils.TruncateString(r.Name, 50),
			utils.FormatSize(r.Size),
			utils.TruncateString(r.Type, 24),
		}
	}

	return ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Size", "Type").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == ltable.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

type TransferSummary struct {
	Status   string
	Files    int
	Bytes    int64
	Duration time.Duration
}

func newPrettyTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Title.Align = text.AlignCenter
	return t
}

// SummaryTable renders the totals printed when a session ends.
func SummaryTable(title string, s TransferSummary) string {
	var speed float64
	if s.Duration > 0 {
		speed = float64(s.Bytes) / s.Duration.Seconds()
	}

	t := newPrettyTable(title)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Status", s.Status},
		{"Files", s.Files},
		{"Total Size", utils.FormatSize(s.Bytes)},
		{"Duration", utils.FormatTimeDuration(s.Duration)},
		{"Avg Speed", utils.FormatSpeed(speed)},
	})
	return t.Render()
}

// HistoryRow is one past transfer.
type HistoryRow struct {
	When      time.Time
	Direction string
	Room      string
	File      string
	Size      int64
	Status    string
}

// HistoryTable renders past transfers, newest first as given.
func HistoryTable(rows []HistoryRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No transfers yet")
	}

	t := newPrettyTable("Transfer History")
	t.AppendHeader(table.Row{"When", "Dir", "Room", "File", "Size", "Status"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.When.Local().Format("2006-01-02 15:04"),
			r.Direction,
			r.Room,
			utils.TruncateString(r.File, 40),
			utils.FormatSize(r.Size),
			r.Status,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
	})
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d transfers", len(rows))})
	return t.Render()
}
