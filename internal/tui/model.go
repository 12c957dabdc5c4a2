// Package tui provides the Bubble Tea enroll/verify interface.
package tui

import (
	"context"
	"fmt"
	"strings"

	"cdr.dev/slog/v3"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/capture"
	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/pattern"
	"github.com/verte-zerg/keyguard/internal/store"
)

// Model implements the Bubble Tea enroll/verify UI.
type Model struct {
	settings model.Settings
	store    *store.Store
	logger   slog.Logger

	session *capture.Session
	stamper *capture.Stamper

	mode       model.Mode
	enrollment *model.Enrollment

	input   []rune
	openKey string
	notice  notice

	keys keyMap
	help help.Model

	width  int
	height int
}

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	subtitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	correctStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cursorStyle    = pendingStyle.Underline(true)
	activeTabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6E6E6E")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	statusStyles = map[capture.State]lipgloss.Style{
		capture.StateIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		capture.StateRecording: lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")),
		capture.StateSuccess:   lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")),
		capture.StateError:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
	}
	noticeStyles = map[severity]lipgloss.Style{
		severityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")),
		severitySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")),
		severityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
	}
)

// Options configures a Model. Store may be nil, in which case nothing is persisted.
type Options struct {
	Settings model.Settings
	Store    *store.Store
	Logger   slog.Logger
	Clock    quartz.Clock
}

// NewModel constructs the UI and loads the user's enrollment, if any. With no
// mode set it verifies enrolled users and enrolls everyone else.
func NewModel(ctx context.Context, opts Options) (*Model, error) {
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	m := &Model{
		settings: opts.Settings,
		store:    opts.Store,
		logger:   opts.Logger.Named("tui"),
		session:  capture.NewSession(pattern.Matcher{Threshold: opts.Settings.Threshold}),
		stamper:  capture.NewStamper(clock),
		mode:     opts.Settings.Mode,
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
	if m.store != nil {
		enrollment, err := m.store.GetEnrollment(ctx, m.settings.User)
		switch {
		case err == nil:
			m.enrollment = &enrollment
		case !xerrors.Is(err, store.ErrNotFound):
			return nil, xerrors.Errorf("load enrollment: %w", err)
		}
	}
	if m.mode == "" {
		m.mode = model.ModeEnroll
		if m.enrollment != nil {
			m.mode = model.ModeVerify
		}
	}
	return m, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.session.State() == capture.StateRecording {
			m.handleTyping(msg)
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Start):
			m.start()
		case key.Matches(msg, m.keys.Mode):
			m.toggleMode()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil
	default:
		return m, nil
	}
}

// phrase returns the text to type in the current mode. Verification uses the
// phrase the pattern was enrolled with.
func (m *Model) phrase() string {
	if m.mode == model.ModeVerify && m.enrollment != nil && m.enrollment.Phrase != "" {
		return m.enrollment.Phrase
	}
	return m.settings.Phrase
}

func (m *Model) reference() *model.KeystrokePattern {
	if m.enrollment == nil {
		return nil
	}
	return &m.enrollment.Pattern
}

func (m *Model) start() {
	m.input = nil
	m.openKey = ""
	m.notice = notice{}
	m.stamper.Arm()
	var ref *model.KeystrokePattern
	if m.mode == model.ModeVerify {
		ref = m.reference()
	}
	if err := m.session.Start(m.phrase(), m.mode, ref); err != nil {
		m.notice = errorNotice(err)
		m.logger.Debug(context.Background(), "capture not started", slog.Error(err))
	}
}

func (m *Model) cancel() {
	m.session.Reset()
	m.input = nil
	m.openKey = ""
	m.notice = notice{title: "Cancelled", body: "Press enter to try again.", severity: severityInfo}
}

func (m *Model) toggleMode() {
	if m.mode == model.ModeVerify {
		m.mode = model.ModeEnroll
	} else if m.enrollment == nil {
		m.notice = errorNotice(capture.ErrMissingReference)
		return
	} else {
		m.mode = model.ModeVerify
	}
	m.session.Reset()
	m.input = nil
	m.notice = notice{}
}

func (m *Model) handleTyping(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyEsc:
		m.cancel()
		return
	case tea.KeyBackspace:
		m.press("Backspace")
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.press(" ")
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if !msg.Paste {
				m.press(string(r))
			}
			m.input = append(m.input, r)
			if m.textChanged() {
				return
			}
		}
		return
	default:
		return
	}
	m.textChanged()
}

// press releases the previously pressed key and presses the new one at the
// same instant. Terminals report key presses only, so the release of a key is
// taken to be the press of the next one and the last key of the phrase stays
// open.
func (m *Model) press(name string) {
	ev := m.stamper.Event(name)
	if m.openKey != "" {
		m.session.OnKeyUp(capture.KeyEvent{Key: m.openKey, At: ev.At})
	}
	m.session.OnKeyDown(ev)
	m.openKey = name
}

// textChanged forwards the typed text and reports whether the attempt finished.
func (m *Model) textChanged() bool {
	out, done := m.session.OnTextChange(string(m.input))
	if !done {
		return false
	}
	m.openKey = ""
	m.handleOutcome(out)
	return true
}

func (m *Model) handleOutcome(out capture.Outcome) {
	ctx := context.Background()
	m.notice = noticeFor(out)
	m.logger.Debug(ctx, "capture finished",
		slog.F("user", m.settings.User),
		slog.F("mode", out.Mode),
		slog.F("outcome", out.Kind.String()),
		slog.F("similarity", out.Score),
		slog.F("total_time_ms", out.Pattern.TotalTime),
		slog.F("avg_press_ms", out.Pattern.AveragePressTime),
	)
	if m.store == nil {
		if out.Kind == capture.OutcomeCaptured {
			m.setEnrollment(model.Enrollment{UserID: m.settings.User, Phrase: m.session.Phrase(), Pattern: out.Pattern})
		}
		return
	}
	if attempt, ok := out.Attempt(m.settings.User); ok {
		if _, err := m.store.InsertAttempt(ctx, attempt); err != nil {
			m.logger.Error(ctx, "failed to save attempt", slog.Error(err))
		}
	}
	if out.Kind != capture.OutcomeCaptured {
		return
	}
	enrollment, err := m.store.UpsertEnrollment(ctx, m.settings.User, m.session.Phrase(), out.Pattern)
	if err != nil {
		m.logger.Error(ctx, "failed to save enrollment", slog.Error(err))
		m.notice = notice{title: "Pattern Not Saved", body: err.Error(), severity: severityError}
		return
	}
	m.setEnrollment(enrollment)
}

// setEnrollment stores the new reference and moves on to verification.
func (m *Model) setEnrollment(e model.Enrollment) {
	m.enrollment = &e
	m.mode = model.ModeVerify
}

// View implements tea.Model.
func (m *Model) View() string {
	contentWidth := 0
	if m.width > 0 {
		contentWidth = max(1, int(float64(m.width)*0.70))
	}
	recording := m.session.State() == capture.StateRecording

	sections := []string{
		titleStyle.Render("keyguard"),
		subtitleStyle.Render("Authentication through typing rhythm"),
		"",
		m.renderTabs(),
		"",
		m.renderStatus(),
		subtitleStyle.Render("Type the following phrase exactly as shown:"),
		wrapStyledRunes(buildStyledRunes([]rune(m.phrase()), m.input, recording), contentWidth),
		"",
	}
	if !m.notice.empty() {
		style := noticeStyles[m.notice.severity]
		sections = append(sections, style.Bold(true).Render(m.notice.title), style.Render(m.notice.body), "")
	}
	keys := m.keys
	if recording {
		keys = keys.recordingKeys()
	}
	sections = append(sections, m.help.View(keys))

	content := strings.Join(sections, "\n")
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.NewStyle().Width(contentWidth).Render(content))
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, 2)
	for _, mode := range []model.Mode{model.ModeEnroll, model.ModeVerify} {
		style := inactiveTabStyle
		if mode == m.mode {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(modeTitle(mode)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderStatus() string {
	state := m.session.State()
	label := ""
	switch state {
	case capture.StateIdle:
		label = "Press enter to start"
	case capture.StateRecording:
		label = "Recording..."
	case capture.StateSuccess:
		label = "Done"
	case capture.StateError:
		label = "Failed"
	}
	user := m.settings.User
	if user == "" {
		user = "anonymous"
	}
	return statusStyles[state].Render(fmt.Sprintf("● %s", label)) + subtitleStyle.Render("  user "+user)
}

func modeTitle(mode model.Mode) string {
	if mode == model.ModeVerify {
		return "Verify Your Identity"
	}
	return "Record Your Typing Pattern"
}
