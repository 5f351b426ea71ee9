package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// Theme holds the kiosk palette as ANSI 256-color codes
type Theme struct {
	Title    lipgloss.Color
	Faint    lipgloss.Color
	Cursor   lipgloss.Color
	Selected lipgloss.Color
	Info     lipgloss.Color
	Success  lipgloss.Color
	Error    lipgloss.Color
	Border   lipgloss.Color
}

var DefaultTheme = Theme{
	Title:    lipgloss.Color("39"),
	Faint:    lipgloss.Color("245"),
	Cursor:   lipgloss.Color("213"),
	Selected: lipgloss.Color("42"),
	Info:     lipgloss.Color("75"),
	Success:  lipgloss.Color("42"),
	Error:    lipgloss.Color("196"),
	Border:   lipgloss.Color("240"),
}

func (t Theme) noticeColor(level models.NoticeLevel) lipgloss.Color {
	switch level {
	case models.NoticeSuccess:
		return t.Success
	case models.NoticeError:
		return t.Error
	default:
		return t.Info
	}
}
