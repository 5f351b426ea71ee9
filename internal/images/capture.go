package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"golang.org/x/image/draw"
)

// MaxCaptureSize caps the bytes accepted for a single capture
const MaxCaptureSize = 10 * 1024 * 1024

// ThumbnailSize is the longest side of a capture thumbnail in pixels
const ThumbnailSize = 96

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = fmt.Errorf("image too large (max %dMB)", MaxCaptureSize/1024/1024)
)

// NewCapture validates raw camera bytes and derives the preview thumbnail
func NewCapture(data []byte, filename string) (*models.Capture, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	if len(data) > MaxCaptureSize {
		return nil, ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, contentType)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	if filename == "" {
		filename = "webcam.jpg"
	}

	capture := &models.Capture{
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}

	thumb, err := Thumbnail(img, ThumbnailSize)
	if err != nil {
		// a capture without preview is still searchable
		slog.Warn("Failed to build capture thumbnail", "filename", filename, "err", err)
	} else {
		capture.Thumbnail = thumb
	}

	return capture, nil
}

// Thumbnail scales img so that its longest side is at most maxSide and
// encodes it as JPEG.
func Thumbnail(img image.Image, maxSide int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	tw, th := w, h
	if w > maxSide || h > maxSide {
		if w >= h {
			tw, th = maxSide, max(1, h*maxSide/w)
		} else {
			tw, th = max(1, w*maxSide/h), maxSide
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
