package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"whisperkey/log"
	"whisperkey/orchestrator"
)

type stateMsg struct{ state orchestrator.State }
type levelMsg struct{ level float64 }
type transcriptMsg struct{ text string }
type backendMsg struct{ status string }
type frameMsg time.Time

var (
	tuiMu      sync.Mutex
	tuiProgram *tea.Program
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiSendState(s orchestrator.State)  { tuiSend(stateMsg{state: s}) }
func tuiSendLevel(level float64)         { tuiSend(levelMsg{level: level}) }
func tuiSendTranscript(text string)      { tuiSend(transcriptMsg{text: text}) }
func tuiSendBackendStatus(status string) { tuiSend(backendMsg{status: status}) }

func tuiQuit() {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Quit()
	}
}

var (
	styleTitle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	styleIdle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleRecording  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	styleProcessing = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	styleLoading    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleMeterOn    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styleMeterHot   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleMeterOff   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	styleTranscript = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleFaint      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleHelp       = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const historyMax = 5

type tuiModel struct {
	cfg   Config
	orch  *orchestrator.Orchestrator
	state orchestrator.State
	frame int

	recordingSince time.Time
	level          float64
	peak           float64

	history []string
	backend string
	width   int
}

func startTUI(cfg Config, orch *orchestrator.Orchestrator) {
	m := tuiModel{cfg: cfg, orch: orch, backend: "unknown"}
	p := tea.NewProgram(m, tea.WithAltScreen())

	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	go func() {
		if _, err := p.Run(); err != nil {
			log.Errorf("tui error: %v", err)
		}
		gracefulShutdown()
	}()
}

func tuiFrame() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiFrame()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			m.orch.Toggle(m.cfg.AutoSubmit)
		case "esc":
			m.orch.Cancel()
		}

	case frameMsg:
		m.frame++
		return m, tuiFrame()

	case stateMsg:
		prev := m.state
		m.state = msg.state
		if msg.state == orchestrator.StateRecording && prev != orchestrator.StateRecording {
			m.recordingSince = time.Now()
			m.level = 0
			m.peak = 0
		}

	case levelMsg:
		if m.state == orchestrator.StateRecording {
			m.level = m.level*0.6 + msg.level*0.4
			if msg.level > m.peak {
				m.peak = msg.level
			}
		}

	case transcriptMsg:
		m.history = append(m.history, msg.text)
		if len(m.history) > historyMax {
			m.history = m.history[len(m.history)-historyMax:]
		}

	case backendMsg:
		m.backend = msg.status
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("whisperkey "+version) + "\n\n")
	b.WriteString(m.statusLine() + "\n")
	b.WriteString(m.meterLine() + "\n\n")

	cfg := m.orch.Config()
	b.WriteString(styleFaint.Render(fmt.Sprintf("model: %s  beam: %d  lang: %s  backend: %s",
		cfg.Model, cfg.Beam, cfg.Language, m.backend)) + "\n\n")

	if len(m.history) == 0 {
		b.WriteString(styleFaint.Render("No transcriptions yet") + "\n")
	} else {
		for i := len(m.history) - 1; i >= 0; i-- {
			prefix := "  "
			if i == len(m.history)-1 {
				prefix = "> "
			}
			b.WriteString(prefix + styleTranscript.Render(m.truncate(m.history[i])) + "\n")
		}
	}

	b.WriteString("\n" + styleHelp.Render(m.cfg.ToggleKey+" or space to record · esc to cancel · q to quit"))
	return b.String()
}

func (m tuiModel) statusLine() string {
	spin := spinnerFrames[m.frame%len(spinnerFrames)]
	switch m.state {
	case orchestrator.StateRecording:
		elapsed := time.Since(m.recordingSince).Seconds()
		line := styleRecording.Render(fmt.Sprintf("● REC %.1fs", elapsed))
		if elapsed > 1.0 && m.peak < 0.02 {
			line += styleProcessing.Render("  no voice detected")
		}
		return line
	case orchestrator.StateProcessing:
		return styleProcessing.Render(spin + " transcribing...")
	case orchestrator.StateModelLoading:
		return styleLoading.Render(spin + " switching model...")
	default:
		return styleIdle.Render("○ idle")
	}
}

func (m tuiModel) meterLine() string {
	const width = 30
	filled := int(m.level * 4 * width)
	if filled > width {
		filled = width
	}
	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i >= filled:
			b.WriteString(styleMeterOff.Render("░"))
		case i > width*3/4:
			b.WriteString(styleMeterHot.Render("█"))
		default:
			b.WriteString(styleMeterOn.Render("█"))
		}
	}
	return b.String()
}

func (m tuiModel) truncate(text string) string {
	limit := m.width - 4
	if limit < 20 {
		limit = 76
	}
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}
