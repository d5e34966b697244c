package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nachoal/urban-quest/capture"
	"github.com/nachoal/urban-quest/history"
	"github.com/nachoal/urban-quest/session"
	"github.com/nachoal/urban-quest/tui/styles"
	"github.com/nachoal/urban-quest/vision"
)

const responseWrapWidth = 76

// Session is the part of the orchestrator the TUI talks to
type Session interface {
	SubmitTurn(ctx context.Context, text string, img *vision.Image) (history.Turn, error)
	ResetForNewQuest()
	StageImage(img *vision.Image)
	ClearPendingImage()
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// QuestTUI renders a session and forwards user input to it
type QuestTUI struct {
	// Core components
	session  Session
	provider string
	model    string
	capture  func(path string) capture.Source
	ctx      context.Context
	cancel   context.CancelFunc

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   *styles.Styles
	keys     KeyMap

	// State
	snapshot    session.Snapshot
	notices     []notice
	updates     <-chan session.Snapshot
	unsubscribe func()
	submitting  bool
	width       int
	height      int
	ready       bool
}

type notice struct {
	text    string
	isError bool
}

// Option configures the TUI
type Option func(*QuestTUI)

// WithCapture replaces how /image paths are turned into image sources
func WithCapture(fn func(path string) capture.Source) Option {
	return func(m *QuestTUI) {
		m.capture = fn
	}
}

// WithTheme selects a color theme
func WithTheme(name string) Option {
	return func(m *QuestTUI) {
		m.styles = styles.NewStyles(styles.GetTheme(name))
	}
}

// New creates the chat TUI for a session
func New(sess Session, provider, model string, opts ...Option) *QuestTUI {
	ta := textarea.New()
	ta.Placeholder = "Ask about the photo"
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(2)

	// Enter sends the message
	ta.KeyMap.InsertNewline.SetEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(responseWrapWidth),
	)

	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe := sess.Subscribe()

	m := &QuestTUI{
		session:     sess,
		provider:    provider,
		model:       model,
		capture:     func(path string) capture.Source { return capture.NewFileSource(path) },
		ctx:         ctx,
		cancel:      cancel,
		textarea:    ta,
		spinner:     s,
		renderer:    renderer,
		styles:      styles.NewStyles(styles.DefaultTheme),
		keys:        DefaultKeyMap(),
		snapshot:    sess.Snapshot(),
		updates:     updates,
		unsubscribe: unsubscribe,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.spinner.Style = m.styles.Spinner

	return m
}

// Messages for the update loop
type (
	snapshotMsg           session.Snapshot
	subscriptionClosedMsg struct{}

	turnResultMsg struct {
		turn history.Turn
		err  error
	}

	imageStagedMsg struct {
		path string
		err  error
	}
)

func (m *QuestTUI) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.waitForSnapshot(),
	)
}

func (m *QuestTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := msg.Height - 8 // header, status, input box and help
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()

		case key.Matches(msg, m.keys.NewQuest):
			m.newQuest()
			return m, nil

		case key.Matches(msg, m.keys.Send):
			value := m.textarea.Value()
			m.textarea.Reset()
			return m, m.handleInput(value)
		}

	case snapshotMsg:
		m.snapshot = session.Snapshot(msg)
		m.refresh()
		return m, m.waitForSnapshot()

	case subscriptionClosedMsg:
		return m, nil

	case turnResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.addNotice(describeError(msg.err), true)
		}
		m.snapshot = m.session.Snapshot()
		m.refresh()
		return m, nil

	case imageStagedMsg:
		if msg.err != nil {
			m.addNotice(fmt.Sprintf("Could not attach %s: %v", msg.path, msg.err), true)
		} else {
			m.addNotice(fmt.Sprintf("Photo attached: %s", msg.path), false)
		}
		m.snapshot = m.session.Snapshot()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		s, cmd := m.spinner.Update(msg)
		m.spinner = s
		cmds = append(cmds, cmd)
	}

	if !m.busy() {
		ta, cmd := m.textarea.Update(msg)
		m.textarea = ta
		cmds = append(cmds, cmd)
	}

	vp, cmd := m.viewport.Update(msg)
	m.viewport = vp
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *QuestTUI) View() string {
	if !m.ready {
		return "\nInitializing..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if len(m.snapshot.Turns) == 0 && len(m.notices) == 0 {
		b.WriteString(m.renderSplash())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.styles.Input.Render(m.textarea.View()))
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

// handleInput runs slash commands and submits everything else
func (m *QuestTUI) handleInput(input string) tea.Cmd {
	text := strings.TrimSpace(input)

	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text)
		switch fields[0] {
		case "/help":
			m.addNotice(helpText, false)
			m.refresh()
			return nil
		case "/new":
			m.newQuest()
			return nil
		case "/image":
			if len(fields) < 2 {
				m.addNotice("Usage: /image <path>", true)
				m.refresh()
				return nil
			}
			return m.stageImage(strings.TrimSpace(strings.TrimPrefix(text, "/image")))
		case "/drop":
			m.session.ClearPendingImage()
			m.addNotice("Photo removed", false)
			m.snapshot = m.session.Snapshot()
			m.refresh()
			return nil
		case "/exit", "/quit":
			return m.quit()
		}
	}

	if text == "" && !m.snapshot.PendingImage {
		return nil
	}
	if m.busy() {
		m.addNotice("Still working on your last question", true)
		m.refresh()
		return nil
	}

	m.submitting = true
	return m.submit(text)
}

func (m *QuestTUI) submit(text string) tea.Cmd {
	ctx := m.ctx
	sess := m.session
	return func() tea.Msg {
		turn, err := sess.SubmitTurn(ctx, text, nil)
		return turnResultMsg{turn: turn, err: err}
	}
}

func (m *QuestTUI) stageImage(path string) tea.Cmd {
	ctx := m.ctx
	source := m.capture(path)
	sess := m.session
	return func() tea.Msg {
		img, err := source.Capture(ctx)
		if err == nil {
			sess.StageImage(img)
		}
		return imageStagedMsg{path: path, err: err}
	}
}

func (m *QuestTUI) newQuest() {
	m.session.ResetForNewQuest()
	m.notices = nil
	m.snapshot = m.session.Snapshot()
	m.refresh()
}

func (m *QuestTUI) quit() tea.Cmd {
	m.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return tea.Quit
}

func (m *QuestTUI) waitForSnapshot() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m *QuestTUI) busy() bool {
	return m.submitting || m.snapshot.Busy
}

func (m *QuestTUI) addNotice(text string, isError bool) {
	m.notices = append(m.notices, notice{text: text, isError: isError})
}

// refresh re-renders the conversation into the viewport
func (m *QuestTUI) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m *QuestTUI) renderConversation() string {
	var b strings.Builder

	for _, turn := range m.snapshot.Turns {
		if turn.InputText != "" || turn.HasImage() {
			b.WriteString(m.styles.RenderSpeaker("user"))
			b.WriteString("\n")
			if turn.InputText != "" {
				b.WriteString(m.styles.UserBubble.Render(turn.InputText))
				b.WriteString("\n")
			}
			if turn.HasImage() {
				b.WriteString(m.styles.ImageBadge.Render(fmt.Sprintf("[photo, %s]", formatSize(len(turn.Image.Data)))))
				b.WriteString("\n")
			}
		}

		if turn.ResponseText != "" {
			speaker := m.styles.RenderSpeaker("quest")
			b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, speaker))
			b.WriteString("\n")
			if turn.Failed {
				b.WriteString(m.styles.FailedBubble.Render(turn.ResponseText))
			} else {
				b.WriteString(m.styles.QuestBubble.Render(m.renderMarkdown(turn.ResponseText)))
			}
			b.WriteString("\n\n")
		}
	}

	for _, n := range m.notices {
		if n.isError {
			b.WriteString(m.styles.ErrorNotice.Render("! " + n.text))
		} else {
			b.WriteString(m.styles.Notice.Render(n.text))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m *QuestTUI) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (m *QuestTUI) renderHeader() string {
	title := history.Title(m.snapshot.Turns)
	header := fmt.Sprintf("UQ | %s | %s/%s", title, m.provider, m.model)
	return m.styles.Header.Render(header)
}

func (m *QuestTUI) renderSplash() string {
	splash := lipgloss.JoinVertical(lipgloss.Center,
		m.styles.Title.Render("Urban Quest"),
		m.styles.Subtitle.Render("Explore the world"),
	)
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, splash)
}

func (m *QuestTUI) renderStatus() string {
	switch {
	case m.busy():
		label := "Thinking..."
		if m.snapshot.Phase == session.PhaseAnalyzingImage {
			label = "Looking at your photo..."
		}
		return m.styles.StatusBar.Render(m.spinner.View() + " " + label)
	case m.snapshot.PendingImage:
		return m.styles.StatusBar.Render(m.styles.ImageBadge.Render("[photo attached]") + " ask something about it, or /drop")
	default:
		return m.styles.StatusBar.Render(fmt.Sprintf("%d turns", len(m.snapshot.Turns)))
	}
}

func (m *QuestTUI) renderHelp() string {
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		parts = append(parts, b.Help().Key+" "+b.Help().Desc)
	}
	parts = append(parts, "/image <path>")
	return m.styles.Help.Render(strings.Join(parts, " • "))
}

func describeError(err error) string {
	var ae *vision.AnalysisError
	switch {
	case errors.Is(err, session.ErrBusy):
		return "Still working on your last question"
	case errors.Is(err, session.ErrEmptyTurn):
		return "Type a question or attach a photo first"
	case errors.Is(err, session.ErrClosed):
		return "This quest has ended"
	case errors.As(err, &ae):
		return fmt.Sprintf("Could not read the photo: %v", ae.Err)
	default:
		return err.Error()
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Help text
const helpText = `Available commands:
/image <path>  - Attach a photo to your next question
/drop          - Remove the attached photo
/new           - Start a new quest
/help          - Show this help message
/exit          - Exit application`
