package kiosk

import (
	"fmt"
	"slices"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// Action is a control a renderer may offer on the current screen
type Action string

const (
	ActionCapture   Action = "capture"
	ActionRetake    Action = "retake"
	ActionSearch    Action = "search"
	ActionToggle    Action = "toggle"
	ActionNewSearch Action = "new_search"
	ActionPay       Action = "pay"
	ActionBack      Action = "back"
	ActionDownload  Action = "download"
	ActionEmail     Action = "email"
	ActionPrint     Action = "print"
)

// Tile is one search result as shown in the gallery
type Tile struct {
	StoragePath string `json:"storage_path"`
	DisplayPath string `json:"display_path"`
	Selected    bool   `json:"selected"`
}

// CaptureView describes the held capture preview
type CaptureView struct {
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// View is a presentation-neutral description of what the kiosk shows
type View struct {
	Screen        models.Screen        `json:"screen"`
	Title         string               `json:"title"`
	Status        string               `json:"status,omitempty"`
	Collections   []string             `json:"collections,omitempty"`
	Collection    string               `json:"collection,omitempty"`
	Capture       *CaptureView         `json:"capture,omitempty"`
	Tiles         []Tile               `json:"tiles,omitempty"`
	SelectedCount int                  `json:"selected_count"`
	PayLabel      string               `json:"pay_label,omitempty"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
	PaymentChecks int                  `json:"payment_checks,omitempty"`
	Actions       []Action             `json:"actions"`
}

// Can reports whether action is offered
func (v View) Can(action Action) bool {
	return slices.Contains(v.Actions, action)
}

// Render maps a snapshot to its view. It has no side effects.
func Render(s Snapshot) View {
	v := View{
		Screen:        s.Screen,
		SelectedCount: len(s.Selection),
		Actions:       []Action{},
	}

	switch s.Screen {
	case models.ScreenUpload:
		v.Title = "Find your photos"
		v.Collections = s.Collections
		v.Collection = s.Collection
		v.Actions = append(v.Actions, ActionCapture)
		if s.Capture != nil {
			v.Capture = &CaptureView{Filename: s.Capture.Filename, Width: s.Capture.Width, Height: s.Capture.Height}
			v.Actions = append(v.Actions, ActionRetake)
			if s.Collection != "" {
				v.Actions = append(v.Actions, ActionSearch)
			}
		}
		if len(s.Collections) == 0 {
			v.Status = "No collections available"
		}

	case models.ScreenLoading:
		v.Title = "Searching for your photos..."
		v.Collection = s.Collection

	case models.ScreenResults:
		v.Collection = s.Collection
		v.Actions = append(v.Actions, ActionNewSearch)
		if s.Result == nil || len(s.Result.Matches) == 0 {
			v.Title = "No Similar Images Found"
			v.Status = "Try capturing another photo in a well-lit area."
			if s.Result != nil && s.Result.Status != "" {
				v.Status = s.Result.Status
			}
			break
		}
		v.Title = "Select your photos"
		v.Status = s.Result.Status
		v.Tiles = tiles(s.Result.Matches, s.Selection)
		v.Actions = append(v.Actions, ActionToggle)
		v.PayLabel = "Proceed to Pay"
		if n := len(s.Selection); n > 0 {
			v.PayLabel = fmt.Sprintf("Proceed to Pay (%d)", n)
			v.Actions = append(v.Actions, ActionPay)
		}

	case models.ScreenPayment:
		v.Title = "Complete your payment"
		v.Status = "Waiting for payment confirmation..."
		if s.Payment != nil {
			v.PaymentStatus = s.Payment.Status
			v.PaymentChecks = s.Payment.Checks
		}
		v.Actions = append(v.Actions, ActionBack)

	case models.ScreenDownload:
		v.Title = "Your photos are ready"
		v.Status = fmt.Sprintf("%d photos purchased", len(s.Selection))
		v.Actions = append(v.Actions, ActionDownload, ActionEmail, ActionPrint, ActionNewSearch)
	}

	return v
}

func tiles(matches []models.Match, selection []string) []Tile {
	out := make([]Tile, 0, len(matches))
	for _, m := range matches {
		out = append(out, Tile{
			StoragePath: m.StoragePath,
			DisplayPath: m.DisplayPath,
			Selected:    slices.Contains(selection, m.StoragePath),
		})
	}
	return out
}
