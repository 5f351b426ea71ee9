package kiosk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// ErrPaymentTimeout means a payment stayed pending longer than PollTimeout
var ErrPaymentTimeout = errors.New("payment was not confirmed in time")

// poll is the single cancellable payment status task of a controller
type poll struct {
	transactionID string
	cancel        context.CancelFunc
	done          chan struct{}
}

// startPollLocked replaces any running poll with one for transactionID.
// Must be called with c.mu held.
func (c *Controller) startPollLocked(transactionID string) {
	c.cancelPollLocked()

	ctx, cancel := context.WithCancel(context.Background())
	p := &poll{
		transactionID: transactionID,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	c.poll = p

	go c.runPoll(ctx, p)
}

// cancelPollLocked stops the running poll, if any. Must be called with c.mu held.
func (c *Controller) cancelPollLocked() {
	if c.poll == nil {
		return
	}
	c.poll.cancel()
	c.logger.Debug("Payment poll cancelled", "transaction_id", c.poll.transactionID)
	c.poll = nil
}

func (c *Controller) runPoll(ctx context.Context, p *poll) {
	defer close(p.done)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	var deadline time.Time
	if c.opts.PollTimeout > 0 {
		deadline = time.Now().Add(c.opts.PollTimeout)
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := c.svc.Payment.PaymentStatus(ctx, p.transactionID)
		if ctx.Err() != nil {
			return
		}
		if err == nil && status == models.PaymentPending && !deadline.IsZero() && time.Now().After(deadline) {
			err = fmt.Errorf("%w after %s", ErrPaymentTimeout, c.opts.PollTimeout)
		}

		c.logger.Debug("Payment status polled", "transaction_id", p.transactionID, "attempt", attempt, "status", status, "err", err)
		if done := c.applyPollResult(p, status, err); done {
			return
		}
	}
}

// applyPollResult folds one status answer into the state machine and
// reports whether polling is over. Answers from a replaced or cancelled poll
// are dropped.
func (c *Controller) applyPollResult(p *poll, status models.PaymentStatus, err error) bool {
	c.mu.Lock()
	if c.closed || c.poll != p || c.screen != models.ScreenPayment {
		c.mu.Unlock()
		return true
	}

	if err != nil {
		c.logger.Warn("Payment polling stopped", "transaction_id", p.transactionID, "err", err)
		c.transitionLocked(models.ScreenResults)
		c.unlockAndNotify(errorNotice("Payment session expired. Please try again."))
		return true
	}

	switch status {
	case models.PaymentPaid:
		order := models.Order{
			TransactionID: p.transactionID,
			SessionID:     c.opts.SessionID,
			Collection:    c.collection,
			Paths:         c.selectionLocked(),
			PaidAt:        time.Now().UTC(),
		}
		c.transitionLocked(models.ScreenDownload)
		c.unlockAndNotify(successNotice("Payment successful!"))

		c.logger.Info("Payment confirmed", "transaction_id", p.transactionID, "photos", len(order.Paths))
		c.recordOrder(order)
		return true
	case models.PaymentExpired:
		c.logger.Warn("Payment session expired", "transaction_id", p.transactionID)
		c.transitionLocked(models.ScreenResults)
		c.unlockAndNotify(errorNotice("Payment session expired. Please try again."))
		return true
	default:
		if c.payment != nil {
			c.payment.Status = status
			c.payment.Checks++
			c.payment.CheckedAt = time.Now()
		}
		c.unlockAndNotify()
		return false
	}
}

func (c *Controller) recordOrder(order models.Order) {
	if c.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.opts.Recorder.RecordOrder(ctx, order); err != nil {
		c.logger.Error("Failed to record order", "transaction_id", order.TransactionID, "err", err)
	}
}
