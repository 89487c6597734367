package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/webdrop/internal/utils"
)

type Mode int

const (
	ModeSend Mode = iota
	ModeReceive
)

// FileView is the displayed state of one file.
type FileView struct {
	Name     string
	Size     int64
	Progress float64
	Status   string
	Err      string
}

// State is what the live view shows. Status uses the session's words:
// connecting, connected, transferring, completed, error.
type State struct {
	Status string
	Peer   string
	Files  []FileView
	Speed  float64
	Err    string
}

// StateMsg replaces the displayed state.
type StateMsg State

type liveModel struct {
	mode     Mode
	state    State
	bars     []progress.Model
	spinner  spinner.Model
	onCancel func()
	quitting bool
}

func newLiveModel(mode Mode, onCancel func()) *liveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &liveModel{mode: mode, spinner: s, onCancel: onCancel}
}

func newBar() progress.Model {
	return progress.New(
		progress.WithGradient(ProgressStart, ProgressEnd),
		progress.WithWidth(25),
		progress.WithoutPercentage(),
	)
}

func (m *liveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		for i := range m.bars {
			m.bars[i].Width = max(10, min(25, msg.Width-60))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StateMsg:
		m.state = State(msg)
		for len(m.bars) < len(m.state.Files) {
			m.bars = append(m.bars, newBar())
		}
	}
	return m, nil
}

func (m *liveModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	icon, verb := IconSend, "Sending"
	if m.mode == ModeReceive {
		icon, verb = IconReceive, "Receiving"
	}
	fmt.Fprintf(&b, "\n%s %s files\n\n", icon, verb)
	fmt.Fprintf(&b, "%s %s\n\n", m.statusIcon(), m.statusLine())

	var total, done int64
	for _, f := range m.state.Files {
		total += f.Size
		done += int64(float64(f.Size) * f.Progress / 100)
	}
	if len(m.state.Files) > 0 {
		fmt.Fprintf(&b, "Overall: %s/%s %s\n\n",
			utils.FormatSize(done),
			utils.FormatSize(total),
			MutedStyle.Render(utils.FormatSpeed(m.state.Speed)),
		)
	}

	for i, f := range m.state.Files {
		var (
			icon  string
			style lipgloss.Style
		)
		switch f.Status {
		case "error":
			icon, style = IconError, ErrorStyle
		case "completed":
			icon, style = IconSuccess, SuccessStyle
		case "transferring":
			icon, style = m.spinner.View(), lipgloss.NewStyle()
		default:
			icon, style = IconPending, MutedStyle
		}

		name := utils.TruncateString(f.Name, 22)
		fmt.Fprintf(&b, "  %s %s ", icon, style.Width(24).Render(name))
		b.WriteString(m.bars[i].ViewAs(f.Progress / 100))
		fmt.Fprintf(&b, " %5.1f%%", f.Progress)
		if f.Err != "" {
			b.WriteString(ErrorStyle.Render(" " + f.Err))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to cancel"))
	return b.String()
}

func (m *liveModel) statusIcon() string {
	switch m.state.Status {
	case "completed":
		return IconComplete
	case "error":
		return IconError
	}
	return m.spinner.View()
}

func (m *liveModel) statusLine() string {
	switch m.state.Status {
	case "connecting":
		if m.mode == ModeReceive {
			return "Waiting for a sender to join..."
		}
		return "Connecting to peer..."
	case "connected":
		return fmt.Sprintf("%s Connected to %s peer", IconPeer, m.state.Peer)
	case "transferring":
		return "Transferring..."
	case "completed":
		return SuccessStyle.Render("Transfer complete")
	case "error":
		return ErrorStyle.Render(m.state.Err)
	}
	return "Starting..."
}

// LiveView runs the transfer display until stopped.
type LiveView struct {
	program *tea.Program
	wg      sync.WaitGroup
}

// NewLiveView renders to out; onCancel runs when the user quits.
func NewLiveView(mode Mode, out io.Writer, onCancel func()) *LiveView {
	return &LiveView{
		program: tea.NewProgram(newLiveModel(mode, onCancel), tea.WithOutput(out)),
	}
}

func (v *LiveView) Start() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

func (v *LiveView) Update(s State) {
	v.program.Send(StateMsg(s))
}

// Stop renders the last state and ends the program.
func (v *LiveView) Stop() {
	v.program.Quit()
	v.wg.Wait()
}
