package kiosk

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"regexp"
	"strings"
)

// BundleFilename is the name offered for downloaded archives
const BundleFilename = "FaceSearch_Memories.zip"

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidEmail is a minimal syntactic check, not a deliverability test
func ValidEmail(address string) bool {
	return emailPattern.MatchString(strings.TrimSpace(address))
}

type deliveryKind int

const (
	deliverBundle deliveryKind = iota
	deliverEmail
)

// Delivery selects how the purchased photos reach the guest
type Delivery struct {
	kind    deliveryKind
	address string
}

// Bundle delivers the selection as a downloadable archive
func Bundle() Delivery {
	return Delivery{kind: deliverBundle}
}

// Email delivers the selection to address
func Email(address string) Delivery {
	return Delivery{kind: deliverEmail, address: strings.TrimSpace(address)}
}

func (d Delivery) String() string {
	if d.kind == deliverEmail {
		return "email"
	}
	return "bundle"
}

// DeliveryResult is what a successful delivery yields
type DeliveryResult struct {
	Archive  []byte
	Filename string
	Message  string
}

// RequestDelivery hands the selection to the delivery service. It never
// changes the active screen.
func (c *Controller) RequestDelivery(ctx context.Context, d Delivery) (*DeliveryResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	paths := c.selectionLocked()
	c.mu.Unlock()

	if len(paths) == 0 {
		return nil, ErrEmptySelection
	}
	if d.kind == deliverEmail && !ValidEmail(d.address) {
		return nil, ErrInvalidEmail
	}

	switch d.kind {
	case deliverEmail:
		msg, err := c.svc.Delivery.Email(ctx, paths, d.address)
		if err != nil {
			c.logger.Error("Email delivery failed", "photos", len(paths), "err", err)
			c.notify(errorNotice(err.Error()))
			return nil, err
		}
		c.logger.Info("Email delivery queued", "photos", len(paths))
		c.notify(successNotice(msg))
		return &DeliveryResult{Message: msg}, nil
	default:
		c.notify(infoNotice("Preparing your high-quality photos..."))
		archive, err := c.svc.Delivery.Bundle(ctx, paths)
		if err != nil {
			c.logger.Error("Bundle download failed", "photos", len(paths), "err", err)
			c.notify(errorNotice(err.Error()))
			return nil, err
		}
		c.logger.Info("Bundle downloaded", "photos", len(paths), "bytes", len(archive))
		return &DeliveryResult{Archive: archive, Filename: BundleFilename}, nil
	}
}

var printTemplate = template.Must(template.New("print").Parse(`<html><head><title>Print Your Park Memories</title><style>
body { margin: 20px; }
img { max-width: 100%; height: auto; display: block; margin-bottom: 20px; page-break-inside: avoid; }
</style></head><body>
{{- range . }}
<img src="{{ . }}">
{{- end }}
</body></html>
`))

// PrintSheet renders a printable page with one image per selected photo
func (c *Controller) PrintSheet() (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	paths := c.selectionLocked()
	c.mu.Unlock()

	if len(paths) == 0 {
		return "", ErrEmptySelection
	}

	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, paths); err != nil {
		return "", fmt.Errorf("failed to render print sheet: %w", err)
	}
	c.notify(infoNotice(fmt.Sprintf("Preparing %d photos for printing...", len(paths))))
	return buf.String(), nil
}
