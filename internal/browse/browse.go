// Package browse is the interactive session browser.
package browse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/internal/display"
	"github.com/QuesmaOrg/codex-summarize-session/internal/log"
	"github.com/QuesmaOrg/codex-summarize-session/internal/openrouter"
	"github.com/QuesmaOrg/codex-summarize-session/internal/session"
	"github.com/QuesmaOrg/codex-summarize-session/internal/summary"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AuthHint is shown when generation fails for lack of an API key.
const AuthHint = "No OpenRouter API key: set OPENROUTER_API_KEY or run 'codex-summarize-session auth set'"

// Backend is what the browser needs from the rest of the application.
type Backend interface {
	Sessions() ([]session.CodexSession, error)
	WorkingDir(path string) string
	Cached(path string) (*summary.Record, error)
	Summarize(ctx context.Context, path string, refresh bool) (*summary.Record, error)
	Extract(path string) (out string, count int, err error)
	Messages(path string) ([]session.Message, error)
}

// Styles
var (
	listPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	detailPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("255"))

	summarizedMarker = "●"
	pendingMarker    = " "
)

type viewMode int

const (
	viewSummary viewMode = iota
	viewMessages
)

type (
	sessionsMsg struct {
		items []*item
		err   error
	}
	summaryMsg struct {
		path    string
		rec     *summary.Record
		err     error
		refresh bool
	}
	extractMsg struct {
		path  string
		out   string
		count int
		err   error
	}
	messagesMsg struct {
		path     string
		messages []session.Message
		err      error
	}
	changedMsg struct{}
)

// model is the Bubble Tea model for the browser
type model struct {
	ctx     context.Context
	backend Backend
	changes <-chan struct{}

	items   []*item
	visible []int
	cursor  int

	listOffset int
	width      int
	height     int

	filter    textinput.Model
	filtering bool
	detail    viewport.Model
	spinner   spinner.Model
	mode      viewMode

	busy     map[string]bool
	messages map[string][]session.Message

	status    string
	statusErr bool
	quitting  bool
	err       error
}

func newModel(ctx context.Context, backend Backend, changes <-chan struct{}) model {
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter sessions"

	return model{
		ctx:      ctx,
		backend:  backend,
		changes:  changes,
		filter:   filter,
		detail:   viewport.New(80, 20),
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		busy:     make(map[string]bool),
		messages: make(map[string][]session.Message),
	}
}

// Init implements tea.Model
func (m model) Init() tea.Cmd {
	return tea.Batch(loadSessions(m.backend), waitForChange(m.changes))
}

func loadSessions(b Backend) tea.Cmd {
	return func() tea.Msg {
		sessions, err := b.Sessions()
		if err != nil {
			return sessionsMsg{err: err}
		}
		items := make([]*item, 0, len(sessions))
		for _, s := range sessions {
			it := &item{Session: s, CWD: b.WorkingDir(s.Path)}
			rec, err := b.Cached(s.Path)
			switch {
			case err == nil:
				it.Summary = rec
			case !errors.Is(err, summary.ErrNoSummary):
				it.Err = err
			}
			items = append(items, it)
		}
		return sessionsMsg{items: items}
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m model) summarize(it *item, refresh bool) tea.Cmd {
	path := it.Path()
	b, ctx := m.backend, m.ctx
	return func() tea.Msg {
		rec, err := b.Summarize(ctx, path, refresh)
		return summaryMsg{path: path, rec: rec, err: err, refresh: refresh}
	}
}

func (m model) extract(it *item) tea.Cmd {
	path := it.Path()
	b := m.backend
	return func() tea.Msg {
		out, n, err := b.Extract(path)
		return extractMsg{path: path, out: out, count: n, err: err}
	}
}

func (m model) loadMessages(it *item) tea.Cmd {
	path := it.Path()
	b := m.backend
	return func() tea.Msg {
		msgs, err := b.Messages(path)
		return messagesMsg{path: path, messages: msgs, err: err}
	}
}

// Update implements tea.Model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			cmds = append(cmds, m.updateFilter(msg))
			break
		}
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = max(m.detailWidth()-2, 5)
		m.detail.Height = max(m.contentHeight()-2, 3)

	case sessionsMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("Failed to load sessions: %v", msg.err))
			break
		}
		m.replaceItems(msg.items)

	case changedMsg:
		log.Debug().Msg("session directory changed")
		cmds = append(cmds, loadSessions(m.backend), waitForChange(m.changes))

	case summaryMsg:
		delete(m.busy, msg.path)
		it := m.find(msg.path)
		if it == nil {
			break
		}
		var perr *summary.PersistenceError
		switch {
		case msg.err == nil:
			it.Summary, it.Err = msg.rec, nil
			it.rendered = ""
			state := "Generated"
			if msg.rec.CacheHit {
				state = "Cached"
			}
			m.setStatus(fmt.Sprintf("%s summary for %s (%s, cost %s)", state,
				it.Session.RelPath, msg.rec.Metadata.Model, msg.rec.Metadata.CostEstimate))
		case errors.As(msg.err, &perr) && perr.Record != nil:
			it.Summary, it.Err = perr.Record, msg.err
			it.rendered = ""
			m.setError(fmt.Sprintf("Summary not saved: %v", msg.err))
		case openrouter.IsAuth(msg.err):
			it.Err = msg.err
			m.setError(AuthHint)
		default:
			it.Err = msg.err
			m.setError(fmt.Sprintf("Summarizing %s failed: %v", it.Session.RelPath, msg.err))
		}

	case extractMsg:
		delete(m.busy, msg.path)
		if msg.err != nil {
			m.setError(fmt.Sprintf("Extract failed: %v", msg.err))
			break
		}
		m.setStatus(fmt.Sprintf("Wrote %s to %s", display.Plural(msg.count, "message line"), msg.out))

	case messagesMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("Failed to read messages: %v", msg.err))
			break
		}
		m.messages[msg.path] = msg.messages

	case spinner.TickMsg:
		if len(m.busy) == 0 {
			break
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
	m.adjustListScroll()
	m.refreshDetail()

	return m, tea.Batch(cmds...)
}

// handleKey processes a key outside filter mode. quit is set when the
// program should exit.
func (m *model) handleKey(msg tea.KeyMsg) (cmd tea.Cmd, quit bool) {
	prev := m.cursor
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return nil, true

	case "esc":
		if m.filter.Value() != "" {
			m.filter.Reset()
			m.applyFilter()
		}

	// Navigation
	case "j", "down":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(len(m.visible)-1, 0)
	case "ctrl+d":
		m.cursor = max(min(m.cursor+m.listHeight()/2, len(m.visible)-1), 0)
	case "ctrl+u":
		m.cursor = max(m.cursor-m.listHeight()/2, 0)

	// Detail pane scrolling
	case "J", "shift+down":
		m.detail.LineDown(1)
	case "K", "shift+up":
		m.detail.LineUp(1)
	case "pgdown", " ":
		m.detail.ViewDown()
	case "pgup":
		m.detail.ViewUp()

	case "/":
		m.filtering = true
		return m.filter.Focus(), false

	case "ctrl+r":
		return loadSessions(m.backend), false

	case "v":
		if m.mode == viewSummary {
			m.mode = viewMessages
			if it := m.selected(); it != nil {
				if _, ok := m.messages[it.Path()]; !ok {
					cmd = m.loadMessages(it)
				}
			}
		} else {
			m.mode = viewSummary
		}
		m.detail.GotoTop()

	case "s", "r", "enter":
		it := m.selected()
		if it == nil || m.busy[it.Path()] {
			return nil, false
		}
		refresh := msg.String() == "r"
		if msg.String() == "enter" && it.Summary != nil {
			return nil, false
		}
		m.busy[it.Path()] = true
		m.setStatus("Summarizing " + it.Session.RelPath + "...")
		m.mode = viewSummary
		return tea.Batch(m.summarize(it, refresh), m.spinner.Tick), false

	case "x":
		it := m.selected()
		if it == nil || m.busy[it.Path()] {
			return nil, false
		}
		m.busy[it.Path()] = true
		return tea.Batch(m.extract(it), m.spinner.Tick), false
	}

	if m.cursor != prev {
		m.detail.GotoTop()
		if it := m.selected(); it != nil && m.mode == viewMessages {
			if _, ok := m.messages[it.Path()]; !ok {
				cmd = m.loadMessages(it)
			}
		}
	}
	return cmd, false
}

func (m *model) updateFilter(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.Reset()
		m.applyFilter()
		return nil
	case "enter":
		m.filtering = false
		m.filter.Blur()
		return nil
	case "ctrl+c":
		m.quitting = true
		return tea.Quit
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return cmd
}

func (m *model) applyFilter() {
	m.visible = filterItems(m.items, m.filter.Value())
	m.cursor = 0
	m.listOffset = 0
	m.detail.GotoTop()
}

// replaceItems swaps in a freshly loaded listing, keeping the selection
// on the same session when it still exists.
func (m *model) replaceItems(items []*item) {
	var keep string
	if it := m.selected(); it != nil {
		keep = it.Path()
	}
	m.items = items
	m.visible = filterItems(items, m.filter.Value())
	m.cursor = 0
	for i, idx := range m.visible {
		if items[idx].Path() == keep {
			m.cursor = i
			break
		}
	}
}

func (m *model) selected() *item {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return nil
	}
	return m.items[m.visible[m.cursor]]
}

func (m *model) find(path string) *item {
	for _, it := range m.items {
		if it.Path() == path {
			return it
		}
	}
	return nil
}

func (m *model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *model) setError(s string) {
	m.status, m.statusErr = s, true
}

// View implements tea.Model
func (m model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	// Wait for terminal dimensions
	if m.width < 20 || m.height < 10 {
		return "Loading..."
	}

	contentHeight := m.contentHeight()
	listWidth := m.listWidth()
	detailWidth := m.detailWidth()

	listPanel := listPanelStyle.
		Width(max(listWidth-2, 5)).
		Height(max(contentHeight-2, 3)).
		Render(m.renderList(max(listWidth-2, 5), max(contentHeight-2, 3)))

	detailPanel := detailPanelStyle.
		Width(max(detailWidth-2, 5)).
		Height(max(contentHeight-2, 3)).
		Render(m.detail.View())

	content := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, detailPanel)
	return lipgloss.JoinVertical(lipgloss.Left, content, m.renderStatusBar())
}

func (m model) renderList(width, height int) string {
	if len(m.items) == 0 {
		return dimStyle.Render("No sessions found")
	}
	if len(m.visible) == 0 {
		return dimStyle.Render("No sessions match the filter")
	}

	var lines []string
	end := min(m.listOffset+height, len(m.visible))
	for i := m.listOffset; i < end; i++ {
		it := m.items[m.visible[i]]
		marker := pendingMarker
		switch {
		case m.busy[it.Path()]:
			marker = m.spinner.View()
		case it.Summary != nil:
			marker = summarizedMarker
		}
		line := fmt.Sprintf("%s %3d. %s", marker, it.Session.Index, it.Session.RelPath)
		line = display.TruncateText(line, width)
		if n := width - lipgloss.Width(line); n > 0 {
			line += strings.Repeat(" ", n)
		}
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// refreshDetail sets the detail pane content for the selected session.
func (m *model) refreshDetail() {
	it := m.selected()
	if it == nil {
		m.detail.SetContent("No selection")
		return
	}
	width := max(m.detail.Width, 20)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session: %s\n", it.Session.RelPath))
	sb.WriteString(fmt.Sprintf("Size: %s  Modified: %s\n",
		display.FormatSize(it.Session.Size), display.FormatAge(it.Session.Modified)))
	if it.CWD != "" {
		sb.WriteString(fmt.Sprintf("CWD: %s\n", it.CWD))
	}
	sb.WriteString(strings.Repeat("─", min(width, 40)))
	sb.WriteString("\n")

	switch m.mode {
	case viewMessages:
		m.writeMessages(&sb, it, width)
	default:
		m.writeSummary(&sb, it, width)
	}
	m.detail.SetContent(sb.String())
}

func (m *model) writeSummary(sb *strings.Builder, it *item, width int) {
	if m.busy[it.Path()] {
		sb.WriteString("\nWorking...\n")
		return
	}
	if it.Err != nil {
		msg := it.Err.Error()
		if openrouter.IsAuth(it.Err) {
			msg = AuthHint
		}
		sb.WriteString(errorStyle.Render(wrapText(msg, width)))
		sb.WriteString("\n")
	}
	if it.Summary == nil {
		sb.WriteString("\nNo summary yet. Press s to summarize.\n")
		return
	}

	meta := it.Summary.Metadata
	sb.WriteString(dimStyle.Render(fmt.Sprintf("model %s  prompt %s  cost %s",
		meta.Model, meta.PromptVariant, meta.CostEstimate)))
	sb.WriteString("\n")

	if it.renderedWidth != width || it.rendered == "" {
		out, err := display.RenderMarkdown(it.Summary.Body, width)
		if err != nil {
			out = wrapText(it.Summary.Body, width)
		}
		it.rendered, it.renderedWidth = out, width
	}
	sb.WriteString(it.rendered)
}

func (m *model) writeMessages(sb *strings.Builder, it *item, width int) {
	msgs, ok := m.messages[it.Path()]
	if !ok {
		sb.WriteString("\nLoading messages...\n")
		return
	}
	if len(msgs) == 0 {
		sb.WriteString("\nNo messages.\n")
		return
	}
	for _, msg := range msgs {
		role := string(msg.Role)
		sb.WriteString(fmt.Sprintf("\n%s %s", display.GetRoleEmoji(role), role))
		if msg.Timestamp != "" {
			sb.WriteString(dimStyle.Render("  " + msg.Timestamp))
		}
		sb.WriteString("\n")
		sb.WriteString(wrapText(msg.Text(), width))
		sb.WriteString("\n")
	}
}

func (m model) renderStatusBar() string {
	position := fmt.Sprintf("%d/%d", min(m.cursor+1, len(m.visible)), len(m.visible))

	var left string
	switch {
	case m.filtering:
		left = m.filter.View()
	case m.status != "":
		left = m.status
		if m.statusErr {
			left = errorStyle.Render(left)
		}
	case m.filter.Value() != "":
		left = "filter: " + m.filter.Value()
	}

	help := "j/k:nav  s:summarize  r:regenerate  x:extract  v:view  /:filter  q:quit"
	status := fmt.Sprintf(" %s | %s | %s", position, left, help)
	return statusBarStyle.Width(m.width).Render(status)
}

// Helper functions

func (m model) contentHeight() int {
	return max(m.height-3, 5)
}

func (m model) listWidth() int {
	return max(m.width*2/5, 10)
}

func (m model) detailWidth() int {
	return max(m.width-m.listWidth()-1, 10)
}

func (m model) listHeight() int {
	return max(m.height-5, 1) // Account for borders and status bar
}

func (m *model) adjustListScroll() {
	visibleHeight := m.listHeight()
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleHeight {
		m.listOffset = m.cursor - visibleHeight + 1
	}
}

func wrapText(s string, width int) string {
	if width < 1 {
		width = 1
	}

	var result strings.Builder
	for _, line := range strings.Split(s, "\n") {
		runes := []rune(line)
		for len(runes) > width {
			result.WriteString(string(runes[:width]))
			result.WriteString("\n")
			runes = runes[width:]
		}
		result.WriteString(string(runes))
		result.WriteString("\n")
	}
	return strings.TrimSuffix(result.String(), "\n")
}

// Run starts the browser. changes, when non-nil, triggers a reload of the
// session list each time it fires.
func Run(ctx context.Context, backend Backend, changes <-chan struct{}) error {
	m := newModel(ctx, backend, changes)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
