package models

import (
	"fmt"
	"time"
)

// Screen is one of the mutually exclusive top-level states of the guest flow
type Screen int

const (
	ScreenUpload Screen = iota
	ScreenLoading
	ScreenResults
	ScreenPayment
	ScreenDownload
)

var screenNames = [...]string{"upload", "loading", "results", "payment", "download"}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return fmt.Sprintf("screen(%d)", int(s))
	}
	return screenNames[s]
}

// ParseScreen converts a screen name back into a Screen
func ParseScreen(name string) (Screen, error) {
	for i, n := range screenNames {
		if n == name {
			return Screen(i), nil
		}
	}
	return ScreenUpload, fmt.Errorf("unknown screen: %q", name)
}

func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Screen) UnmarshalText(text []byte) error {
	parsed, err := ParseScreen(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Match is a single face-search hit
type Match struct {
	StoragePath string  `json:"storage_path"` // identity for selection and download
	DisplayPath string  `json:"display_path"` // preview rendering
	Distance    float64 `json:"distance,omitempty"`
}

// SearchResult is the ranked answer of the search service for one capture
type SearchResult struct {
	Status  string  `json:"status"`
	Matches []Match `json:"matches"`
}

// Contains reports whether storagePath belongs to one of the matches
func (r *SearchResult) Contains(storagePath string) bool {
	if r == nil {
		return false
	}
	for _, m := range r.Matches {
		if m.StoragePath == storagePath {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate a received result
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	matches := make([]Match, len(r.Matches))
	copy(matches, r.Matches)
	return &SearchResult{Status: r.Status, Matches: matches}
}

// Capture is a still image taken at the kiosk, held until searched or retaken
type Capture struct {
	Data        []byte `json:"-"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Thumbnail   []byte `json:"-"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// PaymentStatus is the state of a payment session as reported by the payment service
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentExpired PaymentStatus = "EXPIRED"
)

// PaymentSession tracks one outstanding payment
type PaymentSession struct {
	TransactionID string        `json:"transaction_id"`
	Status        PaymentStatus `json:"status"`
	StartedAt     time.Time     `json:"started_at"`

	// Checks counts the status answers received while still pending
	Checks    int       `json:"checks"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-visible message (toast)
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Order is a confirmed purchase of a set of photos
type Order struct {
	TransactionID string    `json:"transaction_id" yaml:"transaction_id"`
	SessionID     string    `json:"session_id" yaml:"session_id"`
	Collection    string    `json:"collection" yaml:"collection"`
	Paths         []string  `json:"paths" yaml:"paths"`
	PaidAt        time.Time `json:"paid_at" yaml:"paid_at"`
}
