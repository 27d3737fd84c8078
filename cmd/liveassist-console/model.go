package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/liveassist-ai/liveassist-go/pkg/core/exchange"
	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
	"github.com/liveassist-ai/liveassist-go/pkg/history"
	liveassist "github.com/liveassist-ai/liveassist-go/sdk"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	previewStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	sourceStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	answerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// sessionEventMsg wraps one engine event for the update loop.
type sessionEventMsg struct {
	event liveassist.Event
}

// sessionClosedMsg is sent when the event channel drains.
type sessionClosedMsg struct{}

type archivedMsg struct{ err error }

// model renders one live session: newest paragraphs on top, AI answers per
// channel, usage totals in the status line.
type model struct {
	session *liveassist.LiveSession
	store   *history.Store

	channel    string
	preview    map[types.Source]string
	usage      types.UsageTotals
	lastError  string
	ended      bool
	archiveErr error

	width  int
	height int
}

func newModel(session *liveassist.LiveSession, store *history.Store) model {
	return model{
		session: session,
		store:   store,
		channel: exchange.ChannelMain,
		preview: make(map[types.Source]string),
	}
}

func (m model) Init() tea.Cmd {
	return waitEventCmd(m.session)
}

// waitEventCmd blocks on the next engine event.
func waitEventCmd(session *liveassist.LiveSession) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-session.Events()
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg{event: event}
	}
}

func archiveCmd(store *history.Store, session *liveassist.LiveSession) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return archivedMsg{}
		}
		var answers []history.Answer
		for _, channel := range []string{exchange.ChannelMain, exchange.ChannelCode} {
			for _, msg := range session.Messages(channel) {
				answers = append(answers, history.Answer{
					Channel:   channel,
					Kind:      msg.Kind,
					Content:   msg.Content,
					CreatedAt: msg.Timestamp,
				})
			}
		}
		err := store.Archive(session.Session(), chronological(session.Paragraphs()), answers)
		return archivedMsg{err: err}
	}
}

// chronological reverses the newest-first view for storage.
func chronological(paragraphs []types.Paragraph) []types.Paragraph {
	out := make([]types.Paragraph, len(paragraphs))
	for i, p := range paragraphs {
		out[len(paragraphs)-1-i] = p
	}
	return out
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionEventMsg:
		cmd := m.handleEvent(msg.event)
		return m, tea.Batch(cmd, waitEventCmd(m.session))

	case sessionClosedMsg:
		m.ended = true
		return m, nil

	case archivedMsg:
		m.archiveErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		_ = m.session.Close()
		return m, tea.Quit
	case "tab":
		if m.channel == exchange.ChannelMain {
			m.channel = exchange.ChannelCode
		} else {
			m.channel = exchange.ChannelMain
		}
	case "a":
		m.ask(types.KindAnswer)
	case "e":
		m.ask(types.KindExplain)
	case "c":
		m.ask(types.KindCode)
	case "s":
		m.ask(types.KindSummarize)
	case "x":
		m.session.StopExchange(kindForChannel(m.channel))
	case "E":
		if err := m.session.End(); err != nil {
			m.lastError = err.Error()
		}
	}
	return m, nil
}

func (m *model) ask(kind types.RequestKind) {
	if err := m.session.Ask(kind); err != nil {
		m.lastError = err.Error()
	}
}

func kindForChannel(channel string) types.RequestKind {
	if channel == exchange.ChannelCode {
		return types.KindCode
	}
	return types.KindAnswer
}

func (m *model) handleEvent(event liveassist.Event) tea.Cmd {
	switch ev := event.(type) {
	case liveassist.PreviewEvent:
		m.preview[ev.Source] = ev.Text
	case liveassist.ParagraphEvent:
		delete(m.preview, ev.Paragraph.Source)
	case liveassist.UsageEvent:
		m.usage = ev.Totals
	case liveassist.ErrorEvent:
		m.lastError = ev.Err.Message
	case liveassist.EndedEvent:
		m.ended = true
		return archiveCmd(m.store, m.session)
	case liveassist.DisconnectedEvent:
		// Err is nil on a clean server-side close.
		if ev.Err != nil {
			m.lastError = "connection lost: " + ev.Err.Error()
		} else {
			m.lastError = "connection closed by server"
		}
	}
	return nil
}

func (m model) View() string {
	var b strings.Builder

	session := m.session.Session()
	b.WriteString(titleStyle.Render("liveassist"))
	b.WriteString(statusStyle.Render(fmt.Sprintf("  session %s  status %s  used %ds (%d min billed)",
		session.ID, session.Status, m.usage.TotalSeconds, m.usage.BilledMinutes)))
	b.WriteString("\n\n")

	for source, text := range m.preview {
		if text != "" {
			b.WriteString(previewStyle.Render(fmt.Sprintf("[%s] %s", source, text)))
			b.WriteString("\n")
		}
	}

	paragraphs := m.session.Paragraphs()
	limit := len(paragraphs)
	if limit > 8 {
		limit = 8
	}
	for _, p := range paragraphs[:limit] {
		b.WriteString(sourceStyle.Render(string(p.Source) + ": "))
		b.WriteString(p.Text)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("AI (%s)", m.channel)))
	if m.session.Running(m.channel) {
		b.WriteString(statusStyle.Render("  thinking..."))
	}
	b.WriteString("\n")
	messages := m.session.Messages(m.channel)
	if len(messages) > 0 {
		latest := messages[len(messages)-1]
		b.WriteString(answerStyle.Render(latest.Content))
		b.WriteString("\n")
	}

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.lastError))
		b.WriteString("\n")
	}
	if m.ended {
		b.WriteString("\n")
		note := "session ended"
		if m.archiveErr != nil {
			note += " (archive failed: " + m.archiveErr.Error() + ")"
		} else if m.store != nil {
			note += ", transcript archived"
		}
		b.WriteString(statusStyle.Render(note))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("a answer  e explain  c code  s summarize  x stop  tab channel  E end  q quit"))
	return b.String()
}
