// Package tui is a terminal front end over the sequencer service's public
// API. It consumes the same callback surface any other UI would.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/player"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/sequencer"
)

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	playheadStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	assignedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e491c2"))
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))
)

type stepMsg sequencer.StepEvent
type stateMsg sequencer.StateEvent
type degradationMsg player.DegradationEvent

// Model is the bubbletea model for the step grid.
type Model struct {
	svc *sequencer.Service

	stepChan    chan sequencer.StepEvent
	stateChan   chan sequencer.StateEvent
	degradeChan chan player.DegradationEvent

	cursorTrack int
	cursorStep  int
	playhead    int
	degraded    bool
	lastMessage string
	quitting    bool
}

// NewModel wires a model to the service's subscription surface.
func NewModel(svc *sequencer.Service) *Model {
	m := &Model{
		svc:         svc,
		stepChan:    make(chan sequencer.StepEvent, 1),
		stateChan:   make(chan sequencer.StateEvent, 1),
		degradeChan: make(chan player.DegradationEvent, 1),
	}

	svc.OnStep(func(evt sequencer.StepEvent) {
		select {
		case m.stepChan <- evt:
		default:
		}
	})
	svc.OnStateChange(func(evt sequencer.StateEvent) {
		select {
		case m.stateChan <- evt:
		default:
		}
	})
	svc.Player().OnDegradation(func(evt player.DegradationEvent) {
		select {
		case m.degradeChan <- evt:
		default:
		}
	})

	return m
}

func (m *Model) listenForSteps() tea.Cmd {
	return func() tea.Msg { return stepMsg(<-m.stepChan) }
}

func (m *Model) listenForState() tea.Cmd {
	return func() tea.Msg { return stateMsg(<-m.stateChan) }
}

func (m *Model) listenForDegradation() tea.Cmd {
	return func() tea.Msg { return degradationMsg(<-m.degradeChan) }
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listenForSteps(), m.listenForState(), m.listenForDegradation())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.svc.Stop()
			return m, tea.Quit

		case "h", "left":
			if m.cursorStep > 0 {
				m.cursorStep--
			}
		case "l", "right":
			if m.cursorStep < sequencer.NumSteps-1 {
				m.cursorStep++
			}
		case "j", "down":
			if m.cursorTrack < sequencer.NumTracks-1 {
				m.cursorTrack++
			}
		case "k", "up":
			if m.cursorTrack > 0 {
				m.cursorTrack--
			}

		case " ":
			m.svc.ToggleStep(m.cursorTrack, m.cursorStep)

		case "p":
			if m.svc.Playing() {
				m.svc.Stop()
			} else {
				m.svc.Start()
			}

		case "+", "=":
			m.svc.SetBPM(m.svc.BPM() + 5)
		case "-", "_":
			m.svc.SetBPM(m.svc.BPM() - 5)

		case "[":
			if b := m.svc.CurrentBank(); b > 0 {
				m.svc.SwitchBank(b - 1)
			}
		case "]":
			if b := m.svc.CurrentBank(); b < m.svc.TotalBanks()-1 {
				m.svc.SwitchBank(b + 1)
			}

		case "r":
			if m.svc.Player().ForceRecovery() {
				m.lastMessage = "forced recovery"
			}
		}

	case stepMsg:
		m.playhead = msg.Step
		return m, m.listenForSteps()

	case stateMsg:
		m.playhead = msg.CurrentStep
		return m, m.listenForState()

	case degradationMsg:
		m.degraded = msg.Type == player.EventDegradation
		m.lastMessage = fmt.Sprintf("%s: %s", msg.Type, msg.Reason)
		return m, m.listenForDegradation()
	}

	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	bank, err := m.svc.BankSnapshot(m.svc.CurrentBank())
	if err != nil {
		return err.Error()
	}
	playing := m.svc.Playing()

	var buf strings.Builder
	buf.WriteString("\n")
	for t := 0; t < sequencer.NumTracks; t++ {
		track := bank.Tracks[t]

		label := "  ·"
		if track.ChopID != "" {
			label = fmt.Sprintf("%3s", track.ChopID)
		}
		buf.WriteString(assignedStyle.Render(label))
		buf.WriteString(" ")

		for st := 0; st < sequencer.NumSteps; st++ {
			char := "·"
			style := dimStyle
			if track.Steps[st].Active {
				char = "●"
				style = activeStyle
			}
			if t == m.cursorTrack && st == m.cursorStep {
				style = style.Inherit(cursorStyle)
			}
			if st == m.playhead && playing {
				style = playheadStyle
			}
			buf.WriteString(style.Render(char))
		}
		buf.WriteString("\n")
	}

	playState := "stop"
	if playing {
		playState = "play"
	}
	status := fmt.Sprintf("%s %3.0fbpm  bank %c/%c",
		playState, m.svc.BPM(),
		sequencer.BankLetter(m.svc.CurrentBank()),
		sequencer.BankLetter(m.svc.TotalBanks()-1),
	)
	buf.WriteString("\n" + statusStyle.Render(status))

	if m.degraded {
		buf.WriteString("  " + alertStyle.Render("DEGRADED - seeks paused (r to force recovery)"))
	} else if m.lastMessage != "" {
		buf.WriteString("  " + dimStyle.Render(m.lastMessage))
	}

	help := "h/j/k/l:move  space:toggle  p:play  +/-:tempo  [/]:bank  r:recover  q:quit"
	buf.WriteString("\n" + dimStyle.Render(help) + "\n")

	return buf.String()
}
