// Command signalpipe-inspect is a terminal viewer for a spool database:
// top pane shows the persisted state and live session heartbeats,
// bottom pane streams spooled events. Usage:
//
//	signalpipe-inspect path/to/signalpipe.db
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/store"
)

const (
	pollRate       = time.Second
	viewportHeight = 20
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	eventTimeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(21)
	eventSessionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	errorCatStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // Red
	moneyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // Green
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // Blue
)

type tickMsg time.Time

type dataMsg struct {
	events    []store.EventRow
	claimed   int
	sessions  []store.SessionRow
	stateKV   map[string]string
	spoolSize int64
	err       error
}

type model struct {
	st       *store.Store
	spinner  spinner.Model
	viewport viewport.Model
	data     dataMsg
	ready    bool
}

func initialModel(st *store.Store) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{st: st, spinner: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.st),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.st), tick())

	case dataMsg:
		m.data = msg
		if msg.err == nil {
			m.updateViewportContent()
		}
		m.ready = true

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, viewportHeight)
			m.viewport.Style = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				PaddingRight(2)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewportHeight
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *model) updateViewportContent() {
	var sb strings.Builder

	for _, e := range m.data.events {
		ts := time.Unix(e.ClientTS, 0).Format("01-02 15:04:05")

		var categoryStr string
		switch e.Category {
		case store.CategoryError:
			categoryStr = errorCatStyle.Render(string(e.Category))
		case store.CategoryBusiness, store.CategoryResource:
			categoryStr = moneyStyle.Render(string(e.Category))
		default:
			categoryStr = infoStyle.Render(string(e.Category))
		}
		line := fmt.Sprintf("%s %-24s %s %s\n",
			eventTimeStyle.Render(ts),
			categoryStr,
			eventSessionStyle.Render(shorten(e.SessionID)),
			subtleStyle.Render(eventSummary(e.Payload)),
		)
		sb.WriteString(line)
	}

	m.viewport.SetContent(sb.String())
}

// eventSummary pulls the most interesting field out of a payload.
func eventSummary(payload json.RawMessage) string {
	var ev map[string]any
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "(unparseable)"
	}
	for _, key := range []string{"event_id", "message", "length"} {
		if v, found := ev[key]; found {
			return fmt.Sprintf("%s=%v", key, v)
		}
	}
	return ""
}

func shorten(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Opening spool...", m.spinner.View())
	}

	var top strings.Builder
	top.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Persisted State") + "\n\n")

	if len(m.data.stateKV) == 0 {
		top.WriteString(subtleStyle.Render("No state rows."))
	} else {
		keys := make([]string, 0, len(m.data.stateKV))
		for k := range m.data.stateKV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := m.data.stateKV[k]
			if len(value) > 60 {
				value = value[:60] + "..."
			}
			top.WriteString(fmt.Sprintf("• %s = %s\n", k, value))
		}
	}
	if len(m.data.sessions) > 0 {
		top.WriteString("\n" + lipgloss.NewStyle().Bold(true).Render("Live Sessions") + "\n")
		for _, s := range m.data.sessions {
			top.WriteString(fmt.Sprintf("• %s started %s\n",
				shorten(s.SessionID), time.Unix(s.StartTS, 0).Format("15:04:05")))
		}
	}

	topPane := paneStyle.Render(top.String())
	header := headerStyle.Render(fmt.Sprintf("%s Spooled Events", m.spinner.View()))
	bottomPane := m.viewport.View()

	var status string
	if m.data.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Error: %v", m.data.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("%d queued • %d claimed • %d KiB on disk",
			len(m.data.events), m.data.claimed, m.data.spoolSize/1024))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, bottomPane, footer)
}

func fetchData(st *store.Store) tea.Cmd {
	return func() tea.Msg {
		events, err := st.EventsByStatus(store.StatusNew)
		if err != nil {
			return dataMsg{err: err}
		}
		sessions, err := st.Sessions()
		if err != nil {
			return dataMsg{err: err}
		}
		stateKV, err := st.AllState()
		if err != nil {
			return dataMsg{err: err}
		}
		claimed, err := st.CountClaimed()
		if err != nil {
			return dataMsg{err: err}
		}

		return dataMsg{
			events:    events,
			claimed:   claimed,
			sessions:  sessions,
			stateKV:   stateKV,
			spoolSize: st.SizeBytes(),
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: signalpipe-inspect <spool.db>")
		os.Exit(1)
	}

	st, err := store.Open(os.Args[1], logging.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "signalpipe-inspect: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	p := tea.NewProgram(initialModel(st), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
