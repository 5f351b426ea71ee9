// Package kiosk drives a single guest through the photo kiosk flow:
// capture, face search, selection, payment confirmation and delivery.
//
// A Controller holds exactly one active screen. Every transition cancels the
// payment poll, so at most one poll runs at a time and leaving the payment
// screen by any path stops it.
package kiosk

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// SearchService matches a capture against a named collection
type SearchService interface {
	Search(ctx context.Context, collection string, capture *models.Capture) (*models.SearchResult, error)
}

// PaymentService opens payment sessions and reports their status
type PaymentService interface {
	StartPayment(ctx context.Context, paths []string) (string, error)
	PaymentStatus(ctx context.Context, transactionID string) (models.PaymentStatus, error)
}

// DeliveryService hands purchased photos to the guest
type DeliveryService interface {
	Bundle(ctx context.Context, paths []string) ([]byte, error)
	Email(ctx context.Context, paths []string, address string) (string, error)
}

// CollectionLister lists the collections a guest may search
type CollectionLister interface {
	Collections(ctx context.Context) ([]string, error)
}

// OrderRecorder is told about every confirmed payment
type OrderRecorder interface {
	RecordOrder(ctx context.Context, order models.Order) error
}

// Services bundles the remote collaborators of a controller
type Services struct {
	Search      SearchService
	Payment     PaymentService
	Delivery    DeliveryService
	Collections CollectionLister
}

// Options tune a Controller. Zero values get defaults.
type Options struct {
	SessionID string

	// PollInterval is the pause between two payment status checks.
	PollInterval time.Duration
	// PollTimeout bounds how long a payment may stay pending. Zero polls until
	// the payment service reports a terminal status.
	PollTimeout time.Duration

	Recorder OrderRecorder

	// OnChange and OnNotice run outside the controller lock, on the goroutine
	// that caused the change.
	OnChange func(Snapshot)
	OnNotice func(models.Notice)

	Logger *slog.Logger
}

const DefaultPollInterval = 3 * time.Second

// Snapshot is a consistent copy of the controller state
type Snapshot struct {
	SessionID   string                 `json:"session_id"`
	Screen      models.Screen          `json:"screen"`
	Collections []string               `json:"collections"`
	Collection  string                 `json:"collection"`
	Capture     *models.Capture        `json:"capture,omitempty"`
	Result      *models.SearchResult   `json:"result,omitempty"`
	Selection   []string               `json:"selection"`
	Payment     *models.PaymentSession `json:"payment,omitempty"`
}

// Controller is the kiosk session state machine
type Controller struct {
	svc    Services
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	closed      bool
	screen      models.Screen
	collections []string
	collection  string
	capture     *models.Capture
	result      *models.SearchResult
	selection   map[string]struct{}
	payment     *models.PaymentSession

	searchSeq  uint64
	paymentSeq uint64
	poll       *poll
}

// New creates a controller on the Upload screen
func New(svc Services, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SessionID != "" {
		logger = logger.With("session_id", opts.SessionID)
	}
	return &Controller{
		svc:       svc,
		opts:      opts,
		logger:    logger,
		screen:    models.ScreenUpload,
		selection: make(map[string]struct{}),
	}
}

// ID returns the session id the controller was created with
func (c *Controller) ID() string {
	return c.opts.SessionID
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Screen returns the active screen
func (c *Controller) Screen() models.Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// SelectionCount returns the number of selected images
func (c *Controller) SelectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selection)
}

// Polling reports whether a payment poll is active
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poll != nil
}

// TransitionTo navigates on the guest's behalf. Results is reachable only
// from Payment, and Upload only from Upload, Results or Download. Loading,
// Payment and Download are entered through SubmitCapture, BeginPayment and
// the payment poll. A refused transition changes nothing; an accepted one
// always cancels the payment poll.
func (c *Controller) TransitionTo(screen models.Screen) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := checkNavigation(c.screen, screen); err != nil {
		c.mu.Unlock()
		return err
	}
	if screen == models.ScreenUpload {
		c.capture = nil
	}
	c.transitionLocked(screen)
	c.unlockAndNotify()
	return nil
}

// NewSearch drops the capture, results and selection and returns to Upload
func (c *Controller) NewSearch() error {
	return c.TransitionTo(models.ScreenUpload)
}

// Back leaves the payment screen for the results, keeping the selection
func (c *Controller) Back() error {
	return c.TransitionTo(models.ScreenResults)
}

func checkNavigation(from, to models.Screen) error {
	switch to {
	case models.ScreenUpload:
		if from == models.ScreenLoading || from == models.ScreenPayment {
			return &WrongScreenError{Op: "new search", Screen: from}
		}
	case models.ScreenResults:
		if from != models.ScreenPayment {
			return &WrongScreenError{Op: "back", Screen: from}
		}
	default:
		return ErrNotNavigable
	}
	return nil
}

// LoadCollections fetches the searchable collections. The current choice is
// kept when still offered, otherwise the first collection is selected.
func (c *Controller) LoadCollections(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	names, err := c.svc.Collections.Collections(ctx)
	if err != nil {
		c.logger.Error("Failed to load collections", "err", err)
		c.notify(errorNotice(err.Error()))
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.collections = slices.Clone(names)
	if !slices.Contains(c.collections, c.collection) {
		c.collection = ""
		if len(c.collections) > 0 {
			c.collection = c.collections[0]
		}
	}
	var notices []models.Notice
	if len(c.collections) == 0 {
		notices = append(notices, infoNotice("No collections available"))
	}
	c.unlockAndNotify(notices...)
	return nil
}

// SelectCollection chooses the collection the next search runs against
func (c *Controller) SelectCollection(name string) error {
	if name == "" {
		return ErrNoCollection
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if len(c.collections) > 0 && !slices.Contains(c.collections, name) {
		c.mu.Unlock()
		return ErrUnknownCollection
	}
	c.collection = name
	c.unlockAndNotify()
	return nil
}

// SetCapture holds a freshly taken photo until it is searched or retaken
func (c *Controller) SetCapture(capture *models.Capture) error {
	if capture == nil || len(capture.Data) == 0 {
		return ErrNotImage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.screen != models.ScreenUpload {
		screen := c.screen
		c.mu.Unlock()
		return &WrongScreenError{Op: "capture", Screen: screen}
	}
	c.capture = capture
	c.unlockAndNotify()
	return nil
}

// DiscardCapture drops the held photo so the guest can retake it
func (c *Controller) DiscardCapture() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.screen != models.ScreenUpload {
		screen := c.screen
		c.mu.Unlock()
		return &WrongScreenError{Op: "retake", Screen: screen}
	}
	c.capture = nil
	c.unlockAndNotify()
	return nil
}

// SubmitCapture searches the held capture in the selected collection.
//
// Validation failures leave the state untouched. Otherwise the controller
// shows Loading for the duration of the request and ends on Results, or on
// Upload with an error notice when the search failed. Only one search may be
// outstanding at a time.
func (c *Controller) SubmitCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.screen == models.ScreenLoading {
		c.mu.Unlock()
		return ErrSearchInFlight
	}
	if c.screen != models.ScreenUpload {
		screen := c.screen
		c.mu.Unlock()
		return &WrongScreenError{Op: "search", Screen: screen}
	}
	if c.collection == "" {
		c.mu.Unlock()
		return ErrNoCollection
	}
	if c.capture == nil {
		c.mu.Unlock()
		return ErrNoCapture
	}

	collection := c.collection
	capture := c.capture
	c.searchSeq++
	seq := c.searchSeq
	c.transitionLocked(models.ScreenLoading)
	c.unlockAndNotify()

	c.logger.Info("Searching capture", "collection", collection, "bytes", len(capture.Data))
	result, err := c.svc.Search.Search(ctx, collection, capture)

	c.mu.Lock()
	if c.closed || seq != c.searchSeq || c.screen != models.ScreenLoading {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale search response", "collection", collection)
		return err
	}
	if err != nil {
		c.logger.Error("Search failed", "collection", collection, "err", err)
		c.transitionLocked(models.ScreenUpload)
		c.unlockAndNotify(errorNotice("Error: " + err.Error()))
		return err
	}

	c.result = result.Clone()
	if c.result == nil {
		c.result = &models.SearchResult{}
	}
	clear(c.selection)
	c.transitionLocked(models.ScreenResults)
	c.unlockAndNotify()

	c.logger.Info("Search completed", "collection", collection, "matches", len(result.Matches))
	return nil
}

// ToggleSelection adds storagePath to the selection or removes it when
// already selected. It returns whether the path is selected afterwards.
func (c *Controller) ToggleSelection(storagePath string) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.screen != models.ScreenResults {
		screen := c.screen
		c.mu.Unlock()
		return false, &WrongScreenError{Op: "select", Screen: screen}
	}
	if !c.result.Contains(storagePath) {
		c.mu.Unlock()
		return false, ErrUnknownPath
	}

	_, selected := c.selection[storagePath]
	if selected {
		delete(c.selection, storagePath)
	} else {
		c.selection[storagePath] = struct{}{}
	}
	c.unlockAndNotify()
	return !selected, nil
}

// BeginPayment opens a payment session for the selection and starts polling
// it. An empty selection is rejected without calling the payment service.
func (c *Controller) BeginPayment(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if len(c.selection) == 0 {
		c.mu.Unlock()
		return ErrEmptySelection
	}
	if c.screen != models.ScreenResults {
		screen := c.screen
		c.mu.Unlock()
		return &WrongScreenError{Op: "payment", Screen: screen}
	}

	paths := c.selectionLocked()
	c.transitionLocked(models.ScreenPayment)
	c.paymentSeq++
	seq := c.paymentSeq
	c.payment = &models.PaymentSession{Status: models.PaymentPending, StartedAt: time.Now()}
	c.unlockAndNotify(infoNotice("Please complete payment. We are checking for confirmation..."))

	transactionID, err := c.svc.Payment.StartPayment(ctx, paths)

	c.mu.Lock()
	if c.closed || seq != c.paymentSeq || c.screen != models.ScreenPayment {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale payment session", "transaction_id", transactionID)
		return err
	}
	if err != nil {
		c.logger.Error("Failed to start payment", "photos", len(paths), "err", err)
		c.transitionLocked(models.ScreenResults)
		c.unlockAndNotify(errorNotice(err.Error()))
		return err
	}

	c.payment.TransactionID = transactionID
	c.startPollLocked(transactionID)
	c.unlockAndNotify()

	c.logger.Info("Payment session started", "transaction_id", transactionID, "photos", len(paths))
	return nil
}

// Close cancels the poll. The controller rejects every later operation.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelPollLocked()
	c.closed = true
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// transitionLocked must be called with c.mu held
func (c *Controller) transitionLocked(screen models.Screen) {
	c.cancelPollLocked()
	c.payment = nil

	switch screen {
	case models.ScreenUpload:
		clear(c.selection)
		c.result = nil
	case models.ScreenResults, models.ScreenPayment, models.ScreenDownload:
		c.capture = nil
	}

	if c.screen != screen {
		c.logger.Debug("Screen transition", "from", c.screen, "to", screen)
	}
	c.screen = screen
}

func (c *Controller) selectionLocked() []string {
	paths := make([]string, 0, len(c.selection))
	for p := range c.selection {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:   c.opts.SessionID,
		Screen:      c.screen,
		Collections: slices.Clone(c.collections),
		Collection:  c.collection,
		Result:      c.result.Clone(),
		Selection:   c.selectionLocked(),
	}
	if c.capture != nil {
		capture := *c.capture
		s.Capture = &capture
	}
	if c.payment != nil {
		payment := *c.payment
		s.Payment = &payment
	}
	return s
}

// unlockAndNotify releases c.mu and then runs the hooks
func (c *Controller) unlockAndNotify(notices ...models.Notice) {
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.opts.OnChange != nil {
		c.opts.OnChange(snap)
	}
	c.notify(notices...)
}

func (c *Controller) notify(notices ...models.Notice) {
	if c.opts.OnNotice == nil {
		return
	}
	for _, n := range notices {
		c.opts.OnNotice(n)
	}
}

func infoNotice(msg string) models.Notice {
	return models.Notice{Level: models.NoticeInfo, Message: msg, At: time.Now()}
}

func successNotice(msg string) models.Notice {
	return models.Notice{Level: models.NoticeSuccess, Message: msg, At: time.Now()}
}

func errorNotice(msg string) models.Notice {
	return models.Notice{Level: models.NoticeError, Message: msg, At: time.Now()}
}
