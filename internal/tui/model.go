// Package tui is a terminal front end for one kiosk session. It renders the
// controller's view and turns key presses into controller operations.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lehigh-university-libraries/facekiosk/internal/images"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// PrintSheetFilename is the file the print sheet is written to
const PrintSheetFilename = "print.html"

const maxNotices = 3

type inputMode int

const (
	modeBrowse inputMode = iota
	modeCapturePath
	modeEmail
)

// opDoneMsg reports a finished controller operation. notice carries outcomes
// the controller does not announce itself.
type opDoneMsg struct {
	err    error
	notice *models.Notice
}

// Model implements tea.Model for a single kiosk session. Controller
// operations run as commands, never inside Update, because the controller
// hooks send into the program.
type Model struct {
	ctx       context.Context
	ctrl      *kiosk.Controller
	keys      KeyMap
	theme     Theme
	outputDir string

	snap    kiosk.Snapshot
	notices []models.Notice
	cursor  int
	mode    inputMode
	input   textinput.Model
	spinner spinner.Model
	width   int
}

// NewModel creates the model. Downloads and print sheets are written to
// outputDir.
func NewModel(ctx context.Context, ctrl *kiosk.Controller, outputDir string) Model {
	input := textinput.New()
	input.CharLimit = 512

	return Model{
		ctx:       ctx,
		ctrl:      ctrl,
		keys:      DefaultKeyMap,
		theme:     DefaultTheme,
		outputDir: outputDir,
		snap:      ctrl.Snapshot(),
		input:     input,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Init implements tea.Model. Loads the collections.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.do(m.ctrl.LoadCollections), m.spinner.Tick)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case stateChangedMsg:
		m.refresh()
		return m, nil

	case noticeMsg:
		m.addNotice(msg.notice)
		return m, nil

	case opDoneMsg:
		m.refresh()
		if msg.err != nil && (kiosk.IsValidation(msg.err) || kiosk.IsWrongScreen(msg.err)) {
			m.addNotice(models.Notice{Level: models.NoticeError, Message: msg.err.Error(), At: time.Now()})
		}
		if msg.notice != nil {
			m.addNotice(*msg.notice)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.handleInputKeys(msg)
		}
		return m.handleKeys(msg)
	}

	if m.mode != modeBrowse {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	view := kiosk.Render(m.snap)
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(view.Tiles)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.NextCollection):
		if next := nextCollection(m.snap); next != "" {
			return m, m.do(func(context.Context) error { return m.ctrl.SelectCollection(next) })
		}

	case key.Matches(msg, m.keys.Capture) && view.Can(kiosk.ActionCapture):
		return m.startInput(modeCapturePath, "path/to/photo.jpg")
	case key.Matches(msg, m.keys.Retake) && view.Can(kiosk.ActionRetake):
		return m, m.do(func(context.Context) error { return m.ctrl.DiscardCapture() })
	case (key.Matches(msg, m.keys.Search) || key.Matches(msg, m.keys.Confirm)) && view.Can(kiosk.ActionSearch):
		return m, m.do(m.ctrl.SubmitCapture)

	case key.Matches(msg, m.keys.Toggle) && view.Can(kiosk.ActionToggle):
		if m.cursor < len(view.Tiles) {
			path := view.Tiles[m.cursor].StoragePath
			return m, m.do(func(context.Context) error {
				_, err := m.ctrl.ToggleSelection(path)
				return err
			})
		}
	case key.Matches(msg, m.keys.Pay) && view.Can(kiosk.ActionPay):
		return m, m.do(m.ctrl.BeginPayment)
	case key.Matches(msg, m.keys.NewSearch) && view.Can(kiosk.ActionNewSearch):
		m.cursor = 0
		return m, m.do(func(context.Context) error { return m.ctrl.NewSearch() })
	case key.Matches(msg, m.keys.Back) && view.Can(kiosk.ActionBack):
		return m, m.do(func(context.Context) error { return m.ctrl.Back() })

	case key.Matches(msg, m.keys.Download) && view.Can(kiosk.ActionDownload):
		return m, m.download()
	case key.Matches(msg, m.keys.Email) && view.Can(kiosk.ActionEmail):
		return m.startInput(modeEmail, "guest@example.com")
	case key.Matches(msg, m.keys.Print) && view.Can(kiosk.ActionPrint):
		return m, m.print()
	}
	return m, nil
}

func (m Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.stopInput()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.stopInput()
		if mode == modeEmail {
			return m, m.do(func(ctx context.Context) error {
				_, err := m.ctrl.RequestDelivery(ctx, kiosk.Email(value))
				return err
			})
		}
		return m, m.capture(value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startInput(mode inputMode, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.Reset()
	m.input.Placeholder = placeholder
	if mode == modeEmail {
		m.input.Prompt = "Email: "
	} else {
		m.input.Prompt = "Photo: "
	}
	m.input.Focus()
	return m, textinput.Blink
}

func (m *Model) stopInput() {
	m.mode = modeBrowse
	m.input.Blur()
}

func (m Model) do(op func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{err: op(ctx)}
	}
}

// capture reads a still from disk in place of a webcam frame
func (m Model) capture(path string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return opDoneMsg{err: err, notice: errorNotice("Could not read photo: " + err.Error())}
		}
		capture, err := images.NewCapture(data, filepath.Base(path))
		if err != nil {
			return opDoneMsg{err: err, notice: errorNotice("Please capture a valid image: " + err.Error())}
		}
		return opDoneMsg{err: ctrl.SetCapture(capture)}
	}
}

func (m Model) download() tea.Cmd {
	ctx, ctrl, dir := m.ctx, m.ctrl, m.outputDir
	return func() tea.Msg {
		result, err := ctrl.RequestDelivery(ctx, kiosk.Bundle())
		if err != nil {
			return opDoneMsg{err: err}
		}
		path, err := writeOutput(dir, result.Filename, result.Archive)
		if err != nil {
			return opDoneMsg{err: err, notice: errorNotice(err.Error())}
		}
		return opDoneMsg{notice: successNotice("Photos saved to " + path)}
	}
}

func (m Model) print() tea.Cmd {
	ctrl, dir := m.ctrl, m.outputDir
	return func() tea.Msg {
		page, err := ctrl.PrintSheet()
		if err != nil {
			return opDoneMsg{err: err}
		}
		path, err := writeOutput(dir, PrintSheetFilename, []byte(page))
		if err != nil {
			return opDoneMsg{err: err, notice: errorNotice(err.Error())}
		}
		return opDoneMsg{notice: successNotice("Print sheet saved to " + path)}
	}
}

func writeOutput(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	return path, nil
}

func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	tiles := 0
	if m.snap.Result != nil {
		tiles = len(m.snap.Result.Matches)
	}
	if m.cursor >= tiles {
		m.cursor = max(0, tiles-1)
	}
}

func (m *Model) addNotice(n models.Notice) {
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func nextCollection(s kiosk.Snapshot) string {
	if s.Screen != models.ScreenUpload || len(s.Collections) < 2 {
		return ""
	}
	for i, name := range s.Collections {
		if name == s.Collection {
			return s.Collections[(i+1)%len(s.Collections)]
		}
	}
	return s.Collections[0]
}

func errorNotice(msg string) *models.Notice {
	return &models.Notice{Level: models.NoticeError, Message: msg, At: time.Now()}
}

func successNotice(msg string) *models.Notice {
	return &models.Notice{Level: models.NoticeSuccess, Message: msg, At: time.Now()}
}

// View implements tea.Model
func (m Model) View() string {
	view := kiosk.Render(m.snap)
	t := m.theme

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(t.Title)
	faintStyle := lipgloss.NewStyle().Foreground(t.Faint)
	cursorStyle := lipgloss.NewStyle().Bold(true).Foreground(t.Cursor)
	selectedStyle := lipgloss.NewStyle().Foreground(t.Selected)

	var b strings.Builder
	b.WriteString(titleStyle.Render(view.Title))
	b.WriteString("\n")
	if view.Status != "" {
		b.WriteString(faintStyle.Render(view.Status))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch view.Screen {
	case models.ScreenUpload:
		var names []string
		for _, name := range view.Collections {
			if name == view.Collection {
				names = append(names, selectedStyle.Render("["+name+"]"))
			} else {
				names = append(names, name)
			}
		}
		b.WriteString("Collection: " + strings.Join(names, "  ") + "\n")
		if view.Capture != nil {
			fmt.Fprintf(&b, "Photo: %s (%dx%d)\n", view.Capture.Filename, view.Capture.Width, view.Capture.Height)
		} else {
			b.WriteString(faintStyle.Render("No photo captured") + "\n")
		}

	case models.ScreenLoading:
		b.WriteString(m.spinner.View() + " " + view.Collection + "\n")

	case models.ScreenResults:
		for i, tile := range view.Tiles {
			box := "[ ]"
			line := tile.DisplayPath
			if tile.Selected {
				box = selectedStyle.Render("[x]")
			}
			prefix := "  "
			if i == m.cursor {
				prefix = cursorStyle.Render("> ")
				line = cursorStyle.Render(line)
			}
			b.WriteString(prefix + box + " " + line + "\n")
		}
		if view.PayLabel != "" {
			b.WriteString("\n" + view.PayLabel + "\n")
		}

	case models.ScreenPayment:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), view.PaymentStatus)
		if view.PaymentChecks > 0 {
			fmt.Fprintf(&b, "  checked %d times\n", view.PaymentChecks)
		}

	case models.ScreenDownload:
		for _, path := range m.snap.Selection {
			b.WriteString("  " + path + "\n")
		}
	}

	if m.mode != modeBrowse {
		b.WriteString("\n" + m.input.View() + "\n")
	}

	if len(m.notices) > 0 {
		b.WriteString("\n")
		for _, n := range m.notices {
			b.WriteString(lipgloss.NewStyle().Foreground(t.noticeColor(n.Level)).Render(n.Message) + "\n")
		}
	}

	b.WriteString("\n" + faintStyle.Render(m.help(view)))

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
	if m.width > 4 {
		frame = frame.Width(m.width - 2)
	}
	return frame.Render(b.String())
}

func (m Model) help(view kiosk.View) string {
	if m.mode != modeBrowse {
		return m.keys.Confirm.Help().Key + " " + m.keys.Confirm.Help().Desc + " • " +
			m.keys.Cancel.Help().Key + " " + m.keys.Cancel.Help().Desc
	}

	bindings := m.keys.actionKeys()
	var parts []string
	if view.Screen == models.ScreenUpload && len(view.Collections) > 1 {
		parts = append(parts, m.keys.NextCollection.Help().Key+" "+m.keys.NextCollection.Help().Desc)
	}
	for _, action := range view.Actions {
		if b, ok := bindings[action]; ok {
			parts = append(parts, b.Help().Key+" "+b.Help().Desc)
		}
	}
	parts = append(parts, m.keys.Quit.Help().Key+" "+m.keys.Quit.Help().Desc)
	return strings.Join(parts, " • ")
}
