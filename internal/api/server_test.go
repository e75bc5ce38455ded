package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/events"
	"github.com/smazurov/qrgrabber/internal/logging"
	"github.com/smazurov/qrgrabber/internal/platform/fake"
	"github.com/smazurov/qrgrabber/internal/preview"
	"github.com/smazurov/qrgrabber/internal/scan"
)

const (
	testUser = "admin"
	testPass = "secret"
)

type testEnv struct {
	backend *fake.Backend
	ctrl    *scan.Controller
	latest  *preview.Latest
	fanout  *preview.Fanout
	bus     *events.Bus
	ts      *httptest.Server
}

func newTestEnv(t *testing.T, opts ...fake.Option) *testEnv {
	t.Helper()
	backend := fake.New(opts...)
	bus := events.New()
	ctrl := scan.NewController(scan.Options{Media: backend, Scanners: backend, Events: bus})
	env := &testEnv{
		backend: backend,
		ctrl:    ctrl,
		latest:  preview.NewLatest(preview.Options{JPEGQuality: 70}),
		fanout:  preview.NewFanout(),
		bus:     bus,
	}

	server := NewServer(&Options{
		AuthUsername: testUser,
		AuthPassword: testPass,
		Controller:   ctrl,
		Media:        backend,
		Backend:      backend.Name(),
		EventBus:     bus,
		Preview:      env.latest,
		Fanout:       env.fanout,
	})
	env.ts = httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		env.ts.Close()
		_ = ctrl.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, auth bool) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if auth {
		req.SetBasicAuth(testUser, testPass)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

type httpResult struct {
	status int
	body   []byte
}

// scanAsync posts /api/scan and delivers the outcome on the returned channel.
func (e *testEnv) scanAsync(t *testing.T, query string) <-chan httpResult {
	t.Helper()
	out := make(chan httpResult, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, e.ts.URL+"/api/scan"+query, nil)
		req.SetBasicAuth(testUser, testPass)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			out <- httpResult{status: -1, body: []byte(err.Error())}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		out <- httpResult{status: resp.StatusCode, body: body}
	}()
	return out
}

func (e *testEnv) waitScanning(t *testing.T) {
	t.Helper()
	waitFor(t, func() bool {
		r := e.backend.Reader()
		return e.ctrl.Scanning() && r != nil && r.Started()
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func awaitResult(t *testing.T, ch <-chan httpResult) httpResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("scan request did not return")
		return httpResult{}
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/health", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var health struct {
		Status   string `json:"status"`
		Prepared bool   `json:"prepared"`
		Scanning bool   `json:"scanning"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Prepared || health.Scanning {
		t.Errorf("health = %+v", health)
	}
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer token", want: http.StatusUnauthorized},
		{name: "wrong password", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), want: http.StatusUnauthorized},
		{name: "header", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret")), want: http.StatusOK},
		{name: "query", query: "?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/devices"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/devices", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var data struct {
		Backend string `json:"backend"`
		Count   int    `json:"count"`
		Devices []struct {
			Sources []struct {
				Kind    string `json:"kind"`
				Formats []struct {
					Width uint32 `json:"width"`
				} `json:"formats"`
			} `json:"sources"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Backend != "fake" || data.Count != 1 || len(data.Devices) != 1 {
		t.Fatalf("devices = %+v", data)
	}
	if src := data.Devices[0].Sources; len(src) == 0 || src[0].Kind != "color" || len(src[0].Formats) == 0 {
		t.Errorf("sources = %+v", src)
	}
}

func TestPrepareScanner(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/scanner/prepare", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var res struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Width != 800 || res.Height != 600 {
		t.Errorf("resolution = %dx%d, want 800x600", res.Width, res.Height)
	}
	if !env.ctrl.Prepared() {
		t.Error("controller not prepared")
	}
}

func TestPrepareWithoutScanner(t *testing.T) {
	env := newTestEnv(t, fake.WithoutScanner())

	resp, body := env.do(t, http.MethodPost, "/api/scanner/prepare", true)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503, body = %s", resp.StatusCode, body)
	}
}

func TestScanReturnsDecodedLabel(t *testing.T) {
	env := newTestEnv(t)

	out := env.scanAsync(t, "")
	env.waitScanning(t)
	env.backend.Claimed().EmitLabel("https://example.com/item/42")

	r := awaitResult(t, out)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", r.status, r.body)
	}
	var res scan.Result
	if err := json.Unmarshal(r.body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Label != "https://example.com/item/42" || res.ScanID == "" {
		t.Errorf("result = %+v", res)
	}
	if env.backend.ActiveSessions() != 0 {
		t.Error("capture session left active after scan")
	}
}

func TestScanWithoutPrepare(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/scan?prepare=false", true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409, body = %s", resp.StatusCode, body)
	}
}

func TestSecondScanConflicts(t *testing.T) {
	env := newTestEnv(t)

	first := env.scanAsync(t, "")
	env.waitScanning(t)

	resp, body := env.do(t, http.MethodPost, "/api/scan", true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second scan status = %d, want 409, body = %s", resp.StatusCode, body)
	}

	env.backend.Claimed().EmitLabel("first")
	if r := awaitResult(t, first); r.status != http.StatusOK {
		t.Errorf("first scan status = %d, body = %s", r.status, r.body)
	}
}

func TestStopScan(t *testing.T) {
	env := newTestEnv(t)

	out := env.scanAsync(t, "")
	env.waitScanning(t)
	scanID := env.ctrl.ScanID()

	resp, body := env.do(t, http.MethodPost, "/api/scan/stop", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, body = %s", resp.StatusCode, body)
	}
	var stop struct {
		Stopped bool   `json:"stopped"`
		ScanID  string `json:"scan_id"`
	}
	if err := json.Unmarshal(body, &stop); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !stop.Stopped || stop.ScanID != scanID {
		t.Errorf("stop = %+v, want stopped scan %s", stop, scanID)
	}

	if r := awaitResult(t, out); r.status != http.StatusGone {
		t.Errorf("scan status = %d, want 410, body = %s", r.status, r.body)
	}

	// stopping again is a no-op
	resp, body = env.do(t, http.MethodPost, "/api/scan/stop", true)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"stopped":false`) {
		t.Errorf("idle stop = %d %s", resp.StatusCode, body)
	}
}

func TestPreviewSnapshot(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/preview.jpg", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status before first frame = %d, want 404", resp.StatusCode)
	}

	_ = env.latest.Sink(testFrame(16, 8))
	resp, body := env.do(t, http.MethodGet, "/api/preview.jpg", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(body) < 2 || body[0] != 0xff || body[1] != 0xd8 {
		t.Error("body is not a JPEG")
	}
}

func TestPreviewWebsocket(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/preview/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated dial succeeded or wrong status: %v", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(testUser+":"+testPass)))
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return env.fanout.Subscribers() == 1 })
	_ = env.fanout.Sink(testFrame(4, 2))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", kind)
	}
	if w, h := binary.BigEndian.Uint32(msg[0:4]), binary.BigEndian.Uint32(msg[4:8]); w != 4 || h != 2 {
		t.Errorf("header = %dx%d, want 4x2", w, h)
	}
	if len(msg) != frameHeaderSize+4*2*4 {
		t.Errorf("message length = %d", len(msg))
	}

	conn.Close()
	waitFor(t, func() bool { return env.fanout.Subscribers() == 0 })
}

func TestEventStreamDeliversScanEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/events", nil)
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var (
		mu    sync.Mutex
		names []string
	)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				mu.Lock()
				names = append(names, name)
				mu.Unlock()
			}
		}
	}()
	seen := func(name string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, n := range names {
				if n == name {
					return true
				}
			}
			return false
		}
	}

	waitFor(t, seen("connected"))
	env.bus.Publish(events.ScanCompletedEvent{ScanID: "abc", Label: "x"})
	waitFor(t, seen("scan-completed"))
}

func TestLogStreamFilters(t *testing.T) {
	env := newTestEnv(t)

	logger := logging.GetLogger("logstream-test")
	logger.Warn("first")
	logger.Warn("second")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		env.ts.URL+"/api/logs/stream?module=logstream-test&tail=1", nil)
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var (
		mu       sync.Mutex
		messages []string
	)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var entry events.LogEntryEvent
			if json.Unmarshal([]byte(data), &entry) == nil {
				mu.Lock()
				messages = append(messages, entry.Message)
				mu.Unlock()
			}
		}
	}()
	count := func(n int) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(messages) >= n
		}
	}

	waitFor(t, count(1))
	env.bus.Publish(events.LogEntryEvent{Module: "other", Level: "error", Message: "filtered"})
	env.bus.Publish(events.LogEntryEvent{Module: "logstream-test", Level: "info", Message: "live"})
	waitFor(t, count(2))

	mu.Lock()
	defer mu.Unlock()
	if len(messages) != 2 || messages[0] != "second" || messages[1] != "live" {
		t.Errorf("messages = %v, want [second live]", messages)
	}
}

func TestCheckCredentials(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte("u:p"))
	tests := []struct {
		name   string
		header string
		query  string
		want   error
	}{
		{"none", "", "", errAuthRequired},
		{"digest", "Digest abc", "", errInvalidAuthType},
		{"bad base64", "Basic !!!", "", errInvalidAuthFormat},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("up")), "", errInvalidAuthFormat},
		{"wrong", "Basic " + base64.StdEncoding.EncodeToString([]byte("u:x")), "", errInvalidAuth},
		{"header ok", "Basic " + good, "", nil},
		{"query ok", "", good, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := checkCredentials(tt.header, tt.query, "u", "p"); err != tt.want {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func testFrame(w, h int) capture.PixelBuffer {
	pix := make([]byte, w*h*4)
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xff
	}
	return capture.PixelBuffer{Seq: 1, Width: w, Height: h, Pix: pix}
}
