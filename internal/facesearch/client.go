package facesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized means the guest session is missing or was rejected
	ErrUnauthorized = errors.New("guest session not authorized")
	// ErrSessionGone means the payment service no longer knows the transaction
	ErrSessionGone = errors.New("payment session not found or expired")
)

// APIError is a non-success response from the face search API
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("face search API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("face search API returned status %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the face search kiosk API
type Client struct {
	BaseURL      string
	GuestSession string
	Limiter      *rate.Limiter
	httpClient   *http.Client
}

// NewClient creates a new API client; timeout bounds every single request
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			// The API answers 307 to unauthenticated guests; surface it instead of following.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type pathsRequest struct {
	ImagePaths []string `json:"image_paths"`
}

type emailRequest struct {
	ImagePaths []string `json:"image_paths"`
	Email      string   `json:"email"`
}

type searchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		OriginalPath string  `json:"original_path"`
		WebPath      string  `json:"web_path"`
		Distance     float64 `json:"distance"`
	} `json:"results"`
}

// Collections lists the collection names a guest may search
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var resp struct {
		Collections []string `json:"collections"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/collections", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return resp.Collections, nil
}

// Search uploads a capture and returns the ranked matches in collection
func (c *Client) Search(ctx context.Context, collection string, capture *models.Capture) (*models.SearchResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	filename := capture.Filename
	if filename == "" {
		filename = "webcam.jpg"
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build search form: %w", err)
	}
	if _, err := part.Write(capture.Data); err != nil {
		return nil, fmt.Errorf("failed to build search form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build search form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/search/"+url.PathEscape(collection), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var sr searchResponse
	if err := c.do(req, &sr); err != nil {
		return nil, fmt.Errorf("search in %s failed: %w", collection, err)
	}

	result := &models.SearchResult{
		Status:  sr.Status,
		Matches: make([]models.Match, 0, len(sr.Results)),
	}
	for _, r := range sr.Results {
		result.Matches = append(result.Matches, models.Match{
			StoragePath: r.OriginalPath,
			DisplayPath: r.WebPath,
			Distance:    r.Distance,
		})
	}
	slog.Debug("Search completed", "collection", collection, "matches", len(result.Matches))
	return result, nil
}

// StartPayment opens a payment session for the given storage paths
func (c *Client) StartPayment(ctx context.Context, paths []string) (string, error) {
	var resp struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/start-payment", pathsRequest{ImagePaths: paths}, &resp); err != nil {
		return "", fmt.Errorf("could not initiate payment session: %w", err)
	}
	if resp.TransactionID == "" {
		return "", errors.New("could not initiate payment session: empty transaction id")
	}
	return resp.TransactionID, nil
}

// PaymentStatus reports the state of a payment session. A session the API
// can no longer resolve yields ErrSessionGone.
func (c *Client) PaymentStatus(ctx context.Context, transactionID string) (models.PaymentStatus, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/check-payment-status/"+url.PathEscape(transactionID), nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusRequestTimeout) {
			return models.PaymentExpired, fmt.Errorf("%w: %s", ErrSessionGone, apiErr.Detail)
		}
		return "", fmt.Errorf("failed to check payment status: %w", err)
	}

	switch status := models.PaymentStatus(resp.Status); status {
	case models.PaymentPending, models.PaymentPaid:
		return status, nil
	case models.PaymentExpired:
		return status, ErrSessionGone
	default:
		return "", fmt.Errorf("unexpected payment status %q", resp.Status)
	}
}

// Bundle downloads the selected originals packaged as a zip archive
func (c *Client) Bundle(ctx context.Context, paths []string) ([]byte, error) {
	payload, err := json.Marshal(pathsRequest{ImagePaths: paths})
	if err != nil {
		return nil, fmt.Errorf("failed to encode download request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/download-selected/", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return data, nil
}

// Email asks the API to mail the selected photos to address
func (c *Client) Email(ctx context.Context, paths []string, address string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/send-email", emailRequest{ImagePaths: paths, Email: address}, &resp); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	if resp.Message == "" {
		resp.Message = "Email sent successfully!"
	}
	return resp.Message, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.GuestSession != "" {
		req.AddCookie(&http.Cookie{Name: "guest_session", Value: c.GuestSession})
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.wait(req.Context()); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTemporaryRedirect {
		return ErrUnauthorized
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var detail struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != nil {
		if s, ok := detail.Detail.(string); ok {
			apiErr.Detail = s
		} else {
			// validation failures come back as a list of field errors
			raw, _ := json.Marshal(detail.Detail)
			apiErr.Detail = string(raw)
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}
