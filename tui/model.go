// Package tui is a terminal chat over the query pipeline. The model owns the
// conversation history and appends a turn only after an answer arrives.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github/itish2003/convrag/models"
	"github/itish2003/convrag/services"
)

// clearCommand resets the conversation.
const clearCommand = "/clear"

type entry struct {
	question string
	answer   string
	sources  models.RetrievalResult
	err      error
}

type answerMsg struct {
	question string
	resp     *models.AnswerResponse
	err      error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	// ctx is the program's context; questions in flight stop when it ends.
	ctx     context.Context
	service services.RAGService
	retry   services.RetryPolicy
	timeout time.Duration

	history  *models.ConversationHistory
	entries  []entry
	input    textinput.Model
	viewport viewport.Model
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model. Questions run under ctx, and timeout bounds a
// whole question, zero means none.
func New(ctx context.Context, service services.RAGService, retry services.RetryPolicy, timeout time.Duration, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, " + clearCommand + " to start over"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		service:  service,
		retry:    retry,
		timeout:  timeout,
		history:  models.NewConversationHistory(),
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready.",
	}
}

// History returns the conversation so far.
func (m Model) History() []models.Turn { return m.history.Turns() }

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window size and answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{question: msg.question, err: msg.err})
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history.Append(msg.question, msg.resp.Answer)
			m.entries = append(m.entries, entry{question: msg.question, answer: msg.resp.Answer, sources: msg.resp.Sources})
			m.status = fmt.Sprintf("%d turns in conversation.", m.history.Len())
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			if q == clearCommand {
				m.history.Clear()
				m.entries = nil
				m.status = "Conversation cleared."
				m.refresh()
				return m, nil
			}
			m.pending = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	history := models.NewConversationHistory(m.history.Turns()...)
	return func() tea.Msg {
		ctx := m.ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		resp, err := services.QueryWithRetry(ctx, m.service, question, history, m.retry)
		return answerMsg{question: question, resp: resp, err: err}
	}
}

// View renders the transcript, the input box and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Q&A")
	summary := dimStyle.Render(m.summary)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return "No questions yet."
	}
	var sb strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(questionStyle.Render("You: "))
		sb.WriteString(e.question)
		sb.WriteString("\n")
		if e.err != nil {
			sb.WriteString(errorStyle.Render("Error: " + e.err.Error()))
			continue
		}
		sb.WriteString(answerStyle.Render("Assistant: "))
		sb.WriteString(e.answer)
		if cites := Citations(e.sources); cites != "" {
			sb.WriteString("\n")
			sb.WriteString(dimStyle.Render(cites))
		}
	}
	return sb.String()
}

// Citations renders sources as "[n] source, page p (score)" lines.
func Citations(sources models.RetrievalResult) string {
	lines := make([]string, 0, len(sources))
	for i, s := range sources {
		line := fmt.Sprintf("[%d] %s", i+1, s.Chunk.SourceID)
		if s.Chunk.Page != nil {
			line += fmt.Sprintf(", page %d", *s.Chunk.Page)
		}
		line += fmt.Sprintf(" (%.3f)", s.Score)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
