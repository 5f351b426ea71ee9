package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// stateChangedMsg tells the model to refresh its snapshot
type stateChangedMsg struct{}

// noticeMsg delivers a controller notice
type noticeMsg struct {
	notice models.Notice
}

// Events forwards controller hooks into a bubbletea program. Hooks that fire
// before SetProgram are dropped.
type Events struct {
	program atomic.Pointer[tea.Program]
}

func NewEvents() *Events {
	return &Events{}
}

// SetProgram enables delivery. Safe to call from any goroutine.
func (e *Events) SetProgram(program *tea.Program) {
	e.program.Store(program)
}

// OnChange is a kiosk.Options hook. The snapshot itself is not forwarded;
// the model reads the latest one so out of order deliveries are harmless.
func (e *Events) OnChange(kiosk.Snapshot) {
	if p := e.program.Load(); p != nil {
		p.Send(stateChangedMsg{})
	}
}

// OnNotice is a kiosk.Options hook
func (e *Events) OnNotice(n models.Notice) {
	if p := e.program.Load(); p != nil {
		p.Send(noticeMsg{notice: n})
	}
}
