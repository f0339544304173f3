package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragcorpus/internal/service"
)

// Asker is the chat-facing subset of the service.
type Asker interface {
	Ask(ctx context.Context, in service.QueryInput) (service.Answer, error)
}

// answerMsg carries the result of an Ask back into Update.
type answerMsg struct {
	question string
	answer   service.Answer
	err      error
}

// Model is the Bubble Tea model for the chat console.
type Model struct {
	ctx        context.Context
	asker      Asker
	collection string
	input      textinput.Model
	viewport   viewport.Model
	answer     *service.Answer
	status     string
	cursor     int
	ready      bool
	pending    bool
	lastQuery  string
}

// New creates a chat console scoped to collection (blank means everything).
func New(ctx context.Context, asker Asker, collection string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:        ctx,
		asker:      asker,
		collection: collection,
		input:      ti,
		viewport:   vp,
		status:     "Ready. Up/Down browse sources, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, scope, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			a := msg.answer
			m.answer = &a
			m.cursor = 0
			m.lastQuery = msg.question
			m.status = fmt.Sprintf("Answered from %d chunk(s)", a.UsedChunks)
		}
		m.viewport.SetContent(m.render())
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
			m.pending = true
			m.status = "Thinking..."
			m.input.SetValue("")
			return m, m.ask(q)
		case "down":
			if n := m.fragmentCount(); n > 0 {
				m.cursor = (m.cursor + 1) % (n + 1)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := m.fragmentCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n + 1) % (n + 1)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx, asker, collection := m.ctx, m.asker, m.collection
	return func() tea.Msg {
		ans, err := asker.Ask(ctx, service.QueryInput{Question: question, Collection: collection})
		return answerMsg{question: question, answer: ans, err: err}
	}
}

// View renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Corpus Chat")
	scope := "Scope: all sources"
	if m.collection != "" {
		scope = "Scope: " + m.collection
	}
	scopeLine := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(scope)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + scopeLine + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) fragmentCount() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.UsedFragments)
}

// render shows the answer at cursor 0 and the i-th used fragment at cursor i.
func (m Model) render() string {
	if m.answer == nil {
		return "No answer yet."
	}
	if m.cursor == 0 {
		var b strings.Builder
		b.WriteString(answerStyle.Render(m.answer.Answer))
		if len(m.answer.Sources) > 0 {
			b.WriteString("\n\nSources:")
			for _, s := range m.answer.Sources {
				b.WriteString("\n  - " + s.Name)
			}
		}
		return b.String()
	}
	h := m.answer.UsedFragments[m.cursor-1]
	title := fmt.Sprintf("Chunk %d/%d  %s  score=%.3f", m.cursor, len(m.answer.UsedFragments), h.SourceName, h.Score)
	return title + "\n\n" + highlightBestSentence(h.Content, m.lastQuery)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
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
