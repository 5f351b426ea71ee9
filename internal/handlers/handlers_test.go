package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/facesearch"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/ledger"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	startStatus int
	searchGate  chan struct{}
	paid        atomic.Bool
}

func (f *fakeUpstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/collections", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"collections":["family-day","summer-fest"]}`))
	})
	mux.HandleFunc("POST /api/search/{collection}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "family-day", r.PathValue("collection"))
		if f.searchGate != nil {
			<-f.searchGate
		}
		_, _ = w.Write([]byte(`{"status":"Search complete. Found 2 potential matches.","results":[
			{"original_path":"images/a.jpg","web_path":"/images_preview/a.jpg","distance":0.2},
			{"original_path":"images/b.jpg","web_path":"/images_preview/b.jpg","distance":0.3}]}`))
	})
	mux.HandleFunc("POST /api/start-payment", func(w http.ResponseWriter, r *http.Request) {
		if f.startStatus != 0 {
			w.WriteHeader(f.startStatus)
			_, _ = w.Write([]byte(`{"detail":"Could not initiate payment session."}`))
			return
		}
		_, _ = w.Write([]byte(`{"transaction_id":"tx-1"}`))
	})
	mux.HandleFunc("GET /api/check-payment-status/tx-1", func(w http.ResponseWriter, r *http.Request) {
		if f.paid.Load() {
			_, _ = w.Write([]byte(`{"status":"PAID"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"PENDING"}`))
	})
	mux.HandleFunc("POST /api/download-selected/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK\x03\x04zip"))
	})
	mux.HandleFunc("POST /api/send-email", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"Email sent successfully!"}`))
	})
	return mux
}

type testServer struct {
	*httptest.Server
	upstream *fakeUpstream
	handler  *Handler
	ledger   *ledger.Ledger
}

// serverOption adjusts the fake upstream and the handler before they serve
type serverOption func(*fakeUpstream, *Handler)

func withDebug() serverOption {
	return func(_ *fakeUpstream, h *Handler) { h.Debug = true }
}

func newTestServer(t *testing.T, options ...serverOption) *testServer {
	t.Helper()
	upstream := &fakeUpstream{}
	api := httptest.NewServer(upstream.handler(t))
	t.Cleanup(api.Close)

	client := facesearch.NewClient(api.URL, 5*time.Second)
	l, err := ledger.Open("")
	require.NoError(t, err)

	h := New(kiosk.Services{
		Search:      client,
		Payment:     client,
		Delivery:    client,
		Collections: client,
	}, kiosk.Options{
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Minute,
		Recorder:     l,
	})
	for _, option := range options {
		option(upstream, h)
	}
	srv := httptest.NewServer(h.Routes([]string{"*"}))
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &testServer{Server: srv, upstream: upstream, handler: h, ledger: l}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) doJSON(t *testing.T, method, path string, in any) *http.Response {
	t.Helper()
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.do(t, method, path, "application/json", body)
}

func decodeSession(t *testing.T, resp *http.Response) sessionResponse {
	t.Helper()
	var s sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := range 64 {
		for y := range 48 {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartCapture(t *testing.T, data []byte) (string, io.Reader) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "webcam.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &body
}

func createSession(t *testing.T, s *testServer) sessionResponse {
	t.Helper()
	resp := s.doJSON(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSession(t, resp)
}

func TestHealthcheck(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestGuestFlow(t *testing.T) {
	s := newTestServer(t)

	session := createSession(t, s)
	require.NotEmpty(t, session.SessionID)
	base := "/api/sessions/" + session.SessionID
	assert.Equal(t, models.ScreenUpload, session.View.Screen)
	assert.Equal(t, []string{"family-day", "summer-fest"}, session.View.Collections)
	assert.Equal(t, "family-day", session.View.Collection)

	contentType, body := multipartCapture(t, testJPEG(t))
	resp := s.do(t, http.MethodPost, base+"/capture", contentType, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session = decodeSession(t, resp)
	require.NotNil(t, session.View.Capture)
	assert.Equal(t, 64, session.View.Capture.Width)
	assert.True(t, session.View.Can(kiosk.ActionSearch))

	resp = s.do(t, http.MethodGet, base+"/capture/thumbnail", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp = s.doJSON(t, http.MethodPost, base+"/search", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session = decodeSession(t, resp)
	assert.Equal(t, models.ScreenResults, session.View.Screen)
	require.Len(t, session.View.Tiles, 2)
	assert.Nil(t, session.View.Capture)

	resp = s.doJSON(t, http.MethodPost, base+"/selection/toggle", map[string]string{"storage_path": "images/b.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session = decodeSession(t, resp)
	assert.Equal(t, 1, session.View.SelectedCount)
	assert.Equal(t, "Proceed to Pay (1)", session.View.PayLabel)

	resp = s.doJSON(t, http.MethodPost, base+"/payment", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	session = decodeSession(t, resp)
	assert.Equal(t, models.ScreenPayment, session.View.Screen)

	s.upstream.paid.Store(true)
	require.Eventually(t, func() bool {
		resp, err := s.Client().Get(s.URL + base)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var got sessionResponse
		if json.NewDecoder(resp.Body).Decode(&got) != nil {
			return false
		}
		session = got
		return got.View.Screen == models.ScreenDownload
	}, 2*time.Second, 10*time.Millisecond)

	var messages []string
	for _, n := range session.Notices {
		messages = append(messages, n.Message)
	}
	assert.Contains(t, messages, "Payment successful!")
	assert.Eventually(t, func() bool { return len(s.ledger.List()) == 1 }, time.Second, 5*time.Millisecond)

	resp = s.doJSON(t, http.MethodPost, base+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), kiosk.BundleFilename)

	resp = s.doJSON(t, http.MethodPost, base+"/email", map[string]string{"email": "guest@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, base+"/email", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base+"/print", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(page), `<img src="images/b.jpg">`)

	resp = s.doJSON(t, http.MethodPost, base+"/new-search", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session = decodeSession(t, resp)
	assert.Equal(t, models.ScreenUpload, session.View.Screen)
	assert.Zero(t, session.View.SelectedCount)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	session := createSession(t, s)
	base := "/api/sessions/" + session.SessionID

	resp := s.doJSON(t, http.MethodPost, "/api/sessions/unknown/search", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, base+"/search", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "search without capture")

	resp = s.doJSON(t, http.MethodPost, base+"/selection/toggle", map[string]string{"storage_path": "images/a.jpg"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "toggle on upload")

	resp = s.doJSON(t, http.MethodPost, base+"/payment", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "payment without selection")

	resp = s.do(t, http.MethodPost, base+"/capture", "image/jpeg", strings.NewReader("definitely not a jpeg"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPut, base+"/collection", map[string]string{"collection": "winter-gala"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, base+"/screen", map[string]string{"screen": "download"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, base+"/screen", map[string]string{"screen": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentUpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.upstream.startStatus = http.StatusInternalServerError
	session := createSession(t, s)
	base := "/api/sessions/" + session.SessionID

	resp := s.do(t, http.MethodPost, base+"/capture", "image/jpeg", bytes.NewReader(testJPEG(t)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.doJSON(t, http.MethodPost, base+"/search", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.doJSON(t, http.MethodPost, base+"/selection/toggle", map[string]string{"storage_path": "images/a.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, base+"/payment", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base, "", nil)
	session = decodeSession(t, resp)
	assert.Equal(t, models.ScreenResults, session.View.Screen)
	assert.Equal(t, 1, session.View.SelectedCount)
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, withDebug())
	session := createSession(t, s)

	resp := s.do(t, http.MethodGet, "/api/sessions", "", nil)
	var list []sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, session.SessionID, list[0].SessionID)

	resp = s.do(t, http.MethodDelete, "/api/sessions/"+session.SessionID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/sessions/"+session.SessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (s *testServer) getSession(t *testing.T, base string) sessionResponse {
	t.Helper()
	resp := s.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeSession(t, resp)
}

func (s *testServer) navigate(t *testing.T, base string, screen models.Screen) *http.Response {
	t.Helper()
	return s.doJSON(t, http.MethodPost, base+"/screen", map[string]string{"screen": screen.String()})
}

func TestScreenNavigation(t *testing.T) {
	s := newTestServer(t)
	session := createSession(t, s)
	base := "/api/sessions/" + session.SessionID

	resp := s.navigate(t, base, models.ScreenResults)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "upload to results")
	assert.Equal(t, models.ScreenUpload, s.getSession(t, base).View.Screen)

	resp = s.do(t, http.MethodPost, base+"/capture", "image/jpeg", bytes.NewReader(testJPEG(t)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.doJSON(t, http.MethodPost, base+"/search", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.doJSON(t, http.MethodPost, base+"/selection/toggle", map[string]string{"storage_path": "images/a.jpg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.navigate(t, base, models.ScreenResults)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "results to results")

	resp = s.doJSON(t, http.MethodPost, base+"/payment", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = s.navigate(t, base, models.ScreenUpload)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "payment to upload")
	resp = s.doJSON(t, http.MethodPost, base+"/new-search", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "new search during payment")
	assert.Equal(t, models.ScreenPayment, s.getSession(t, base).View.Screen)

	resp = s.navigate(t, base, models.ScreenResults)
	require.Equal(t, http.StatusOK, resp.StatusCode, "back from payment")
	session = decodeSession(t, resp)
	assert.Equal(t, models.ScreenResults, session.View.Screen)
	assert.Equal(t, 1, session.View.SelectedCount)

	s.upstream.paid.Store(true)
	resp = s.doJSON(t, http.MethodPost, base+"/payment", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		resp, err := s.Client().Get(s.URL + base)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var got sessionResponse
		return json.NewDecoder(resp.Body).Decode(&got) == nil && got.View.Screen == models.ScreenDownload
	}, 2*time.Second, 10*time.Millisecond)

	resp = s.navigate(t, base, models.ScreenResults)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "download to results")
	session = s.getSession(t, base)
	assert.Equal(t, models.ScreenDownload, session.View.Screen)
	assert.False(t, session.View.Can(kiosk.ActionPay))

	resp = s.navigate(t, base, models.ScreenUpload)
	require.Equal(t, http.StatusOK, resp.StatusCode, "download to upload")
	session = decodeSession(t, resp)
	assert.Equal(t, models.ScreenUpload, session.View.Screen)
	assert.Zero(t, session.View.SelectedCount)
}

func TestScreenNavigationDuringSearch(t *testing.T) {
	gate := make(chan struct{})
	s := newTestServer(t, func(u *fakeUpstream, _ *Handler) { u.searchGate = gate })
	t.Cleanup(func() {
		select {
		case <-gate:
		default:
			close(gate)
		}
	})
	session := createSession(t, s)
	base := "/api/sessions/" + session.SessionID

	resp := s.do(t, http.MethodPost, base+"/capture", "image/jpeg", bytes.NewReader(testJPEG(t)))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	searched := make(chan int, 1)
	go func() {
		resp, err := s.Client().Post(s.URL+base+"/search", "application/json", nil)
		if err != nil {
			searched <- 0
			return
		}
		resp.Body.Close()
		searched <- resp.StatusCode
	}()
	require.Eventually(t, func() bool {
		resp, err := s.Client().Get(s.URL + base)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var got sessionResponse
		return json.NewDecoder(resp.Body).Decode(&got) == nil && got.View.Screen == models.ScreenLoading
	}, 2*time.Second, 5*time.Millisecond)

	resp = s.navigate(t, base, models.ScreenResults)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "loading to results")
	resp = s.navigate(t, base, models.ScreenUpload)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "loading to upload")

	close(gate)
	assert.Equal(t, http.StatusOK, <-searched)
	session = s.getSession(t, base)
	assert.Equal(t, models.ScreenResults, session.View.Screen)
	assert.Len(t, session.View.Tiles, 2)
}

func TestListSessionsNeedsDebug(t *testing.T) {
	s := newTestServer(t)
	createSession(t, s)

	resp := s.do(t, http.MethodGet, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExpireSessions(t *testing.T) {
	s := newTestServer(t)
	session := createSession(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.handler.ExpireSessions(ctx, 20*time.Millisecond)

	require.Eventually(t, func() bool { return s.handler.sessionStore.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	resp := s.do(t, http.MethodGet, "/api/sessions/"+session.SessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
