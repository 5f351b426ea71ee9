package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
)

// KeyMap defines the kiosk key bindings. Screen specific bindings are only
// active while the view offers the matching action.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	NextCollection key.Binding

	Capture   key.Binding
	Retake    key.Binding
	Search    key.Binding
	Toggle    key.Binding
	Pay       key.Binding
	NewSearch key.Binding
	Back      key.Binding

	Download key.Binding
	Email    key.Binding
	Print    key.Binding

	Confirm key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	NextCollection: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "collection"),
	),
	Capture: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "capture"),
	),
	Retake: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retake"),
	),
	Search: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "search"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "x"),
		key.WithHelp("space", "select"),
	),
	Pay: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pay"),
	),
	NewSearch: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new search"),
	),
	Back: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "back"),
	),
	Download: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "download"),
	),
	Email: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "email"),
	),
	Print: key.NewBinding(
		key.WithKeys("P"),
		key.WithHelp("P", "print"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// actionKeys maps view actions to the binding that triggers them
func (k KeyMap) actionKeys() map[kiosk.Action]key.Binding {
	return map[kiosk.Action]key.Binding{
		kiosk.ActionCapture:   k.Capture,
		kiosk.ActionRetake:    k.Retake,
		kiosk.ActionSearch:    k.Search,
		kiosk.ActionToggle:    k.Toggle,
		kiosk.ActionNewSearch: k.NewSearch,
		kiosk.ActionPay:       k.Pay,
		kiosk.ActionBack:      k.Back,
		kiosk.ActionDownload:  k.Download,
		kiosk.ActionEmail:     k.Email,
		kiosk.ActionPrint:     k.Print,
	}
}
