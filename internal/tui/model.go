// Package tui is an interactive question console over an indexed
// collection, built on Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragstack/internal/domain"
	"ragstack/internal/engine"
)

// QueryPort is the TUI-facing subset of the query engine.
type QueryPort interface {
	Answer(ctx context.Context, question string) (engine.Result, error)
}

// Model is the Bubble Tea model for the question console.
type Model struct {
	engine   QueryPort
	input    textinput.Model
	viewport viewport.Model
	result   engine.Result
	status   string
	summary  string
	cursor   int
	ready    bool
	answered bool
}

// New creates a console over the given engine. The summary line is
// shown under the header, typically the collection name and backend.
func New(eng QueryPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (quit to exit)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{engine: eng, input: ti, viewport: vp, summary: summary, status: "Ready."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and question boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := questionBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + summary
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if strings.EqualFold(q, "quit") {
				return m, tea.Quit
			}
			if q != "" {
				res, err := m.engine.Answer(context.Background(), q)
				if err != nil {
					m.status = "Error: " + err.Error()
					m.answered = false
				} else {
					m.status = fmt.Sprintf("Answered %q using %d sources", q, len(res.Matches))
					m.result = res
					m.cursor = 0
					m.answered = true
				}
				m.input.Reset()
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "down":
			if len(m.result.Matches) > 0 {
				m.cursor = (m.cursor + 1) % len(m.result.Matches)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "up":
			if len(m.result.Matches) > 0 {
				m.cursor = (m.cursor - 1 + len(m.result.Matches)) % len(m.result.Matches)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragstack")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := questionBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderAnswer() string {
	if !m.answered {
		return "Ask something to get started."
	}
	var b strings.Builder
	b.WriteString(m.result.Answer)
	if len(m.result.Matches) == 0 {
		return b.String()
	}
	b.WriteString("\n\n")
	b.WriteString(sourceHeaderStyle.Render(
		fmt.Sprintf("Source %d/%d", m.cursor+1, len(m.result.Matches))))
	b.WriteString("\n")
	match := m.result.Matches[m.cursor]
	b.WriteString(fmt.Sprintf("score=%.3f  %s\n", match.Score, sourceOf(match.Record.Metadata)))
	b.WriteString(snippet(match.Record.Text, 400))
	return b.String()
}

func sourceOf(meta map[string]string) string {
	if s := meta[domain.MetaSource]; s != "" {
		return s
	}
	return "(unknown source)"
}

func snippet(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

var (
	answerBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourceHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
