package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rentbot/internal/domain"
)

// QAPort is the TUI-facing subset of the retrieval pipeline, already bound
// to the requester's scopes.
type QAPort interface {
	Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error)
	Generate(ctx context.Context, question string, results []domain.SearchResult) (string, error)
}

// answerMsg carries the outcome of an asynchronous question.
type answerMsg struct {
	question string
	answer   string
	results  []domain.SearchResult
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service   QAPort
	ctx       context.Context
	timeout   time.Duration
	title     string
	input     textinput.Model
	viewport  viewport.Model
	answer    string
	results   []domain.SearchResult
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model. Each question runs under ctx with the given
// timeout; a zero timeout means no limit.
func New(ctx context.Context, service QAPort, title, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the contract and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		ctx:      ctx,
		timeout:  timeout,
		title:    title,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Ask a question.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// ask runs retrieval and generation off the UI goroutine.
func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx := m.ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		res, err := m.service.Retrieve(ctx, q)
		if err != nil {
			return answerMsg{question: q, err: err}
		}
		answer, err := m.service.Generate(ctx, q, res)
		return answerMsg{question: q, answer: answer, results: res, err: err}
	}
}

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case answerMsg:
		m.busy = false
		m.lastQuery = msg.question
		m.cursor = 0
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = ""
			m.results = msg.results
		} else {
			m.status = fmt.Sprintf("Answered %q from %d passages", msg.question, len(msg.results))
			m.answer = msg.answer
			m.results = msg.results
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.status = fmt.Sprintf("Thinking about %q...", q)
			return m, m.ask(q)
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout, the answer and the current source passage.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	var b strings.Builder
	if m.answer != "" {
		b.WriteString(answerStyle.Render(m.answer))
		b.WriteString("\n\n")
	}
	if len(m.results) == 0 {
		if m.answer == "" {
			b.WriteString("No answer yet.")
		}
		return b.String()
	}
	r := m.results[m.cursor]
	fmt.Fprintf(&b, "Source %d/%d  %s  score=%.3f\n\n", m.cursor+1, len(m.results), r.Metadata.SourceID, r.Score)
	b.WriteString(highlightBestSentence(r.Metadata.ChunkText, m.lastQuery))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
