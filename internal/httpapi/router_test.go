package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/freeeve/stackrabbit/api/internal/engine"
	"github.com/freeeve/stackrabbit/api/internal/metrics"
	"github.com/freeeve/stackrabbit/api/internal/pool"
)

var emptyBoard = strings.Repeat("0", 200)

type call struct {
	kind  engine.Kind
	input string
}

// recordingEngine answers "result for <kind>" and remembers every call.
type recordingEngine struct {
	mu    sync.Mutex
	calls []call
	fn    func(kind engine.Kind, input string) (string, error)
}

func (e *recordingEngine) Evaluate(kind engine.Kind, input string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call{kind, input})
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(kind, input)
	}
	return "result for " + kind.String(), nil
}

func (e *recordingEngine) last(t *testing.T) call {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		t.Fatal("engine was not called")
	}
	return e.calls[len(e.calls)-1]
}

func (e *recordingEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type testServer struct {
	srv    *httptest.Server
	pool   *pool.Pool
	engine *recordingEngine
	m      *metrics.Metrics
}

func newTestServer(t *testing.T, mod func(*RouterConfig)) *testServer {
	t.Helper()
	m := metrics.New()
	p := pool.New(pool.Config{Logger: zerolog.Nop(), NumWorkers: 2, Metrics: m})
	eng := &recordingEngine{}
	cfg := RouterConfig{
		Logger:     zerolog.Nop(),
		Pool:       p,
		Engine:     eng,
		Metrics:    m,
		CORSOrigin: "*",
	}
	if mod != nil {
		mod(&cfg)
	}
	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(func() {
		srv.Close()
		p.Shutdown()
	})
	return &testServer{srv: srv, pool: p, engine: eng, m: m}
}

func (ts *testServer) get(t *testing.T, path string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body, hdr := ts.get(t, "/ping")
	if code != http.StatusOK || body != "pong" {
		t.Errorf("GET /ping = %d %q", code, body)
	}
	if ct := hdr.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if hdr.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if ts.pool.GetStatus().Submitted != 0 {
		t.Error("ping must not touch the pool")
	}
}

func TestTopMovesHybrid(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body, hdr := ts.get(t, "/top-moves-hybrid?board="+emptyBoard+"&currentPiece=0&nextPiece=1")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %q", code, body)
	}
	if body != "result for top-moves-hybrid" {
		t.Errorf("body = %q", body)
	}
	if ct := hdr.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	c := ts.engine.last(t)
	if c.kind != engine.KindTopMovesHybrid {
		t.Errorf("kind = %v", c.kind)
	}
	if want := emptyBoard + "|18|0|0|1|X.|343|3|25|"; c.input != want {
		t.Errorf("engine input = %q, want %q", c.input, want)
	}
}

func TestRateMove(t *testing.T) {
	ts := newTestServer(t, nil)
	second := strings.Repeat("0", 190) + strings.Repeat("1", 10)

	code, body, _ := ts.get(t, "/rate-move?board="+emptyBoard+"&secondBoard="+second+"&level=19&lines=10&inputFrameTimeline=X...")
	if code != http.StatusOK || body != "result for rate-move" {
		t.Fatalf("GET /rate-move = %d %q", code, body)
	}
	c := ts.engine.last(t)
	if c.kind != engine.KindRateMove {
		t.Errorf("kind = %v", c.kind)
	}
	if want := emptyBoard + "|" + second + "|19|10|-1|-1|X...|343|3|25|"; c.input != want {
		t.Errorf("engine input = %q, want %q", c.input, want)
	}
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"rate move without second board", "/rate-move?board=" + emptyBoard, "Missing required parameter: secondBoard"},
		{"short board", "/top-moves-hybrid?board=" + emptyBoard[:199], "Board string must be 200 characters long"},
		{"missing board", "/top-moves-hybrid", "Missing required parameter: board"},
		{"bad piece", "/top-moves-hybrid?board=" + emptyBoard + "&currentPiece=7", "Current piece must be between -1 and 6"},
		{"bad level", "/top-moves-hybrid?board=" + emptyBoard + "&level=17", "Level must be 18 or higher"},
		{"malformed lines", "/top-moves-hybrid?board=" + emptyBoard + "&lines=ten", ""},
		{"bad escape in level", "/top-moves-hybrid?board=" + emptyBoard + "&level=%zz&currentPiece=9%", `Parameter level is not validly percent-encoded, got "%zz"`},
		{"truncated escape in piece", "/top-moves-hybrid?board=" + emptyBoard + "&currentPiece=9%", `Parameter currentPiece is not validly percent-encoded, got "9%"`},
		{"bad escape in second board", "/rate-move?board=" + emptyBoard + "&secondBoard=%G0", ""},
		{"level beyond int32", "/top-moves-hybrid?board=" + emptyBoard + "&level=4294967314", `Parameter level is out of range, got "4294967314"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body, _ := ts.get(t, tt.path)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if tt.body != "" && body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
	if n := ts.engine.count(); n != 0 {
		t.Errorf("engine called %d times for invalid requests", n)
	}
	if n := ts.pool.GetStatus().Submitted; n != 0 {
		t.Errorf("pool received %d tasks for invalid requests", n)
	}
}

func TestEngineFailuresAreGeneric500(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		fn   func(engine.Kind, string) (string, error)
	}{
		{"engine error", func(engine.Kind, string) (string, error) {
			return "", &engine.Failure{Kind: engine.KindTopMovesHybrid, Stderr: "secret detail", Err: errors.New("exit status 1")}
		}},
		{"engine panic", func(engine.Kind, string) (string, error) { panic("segfault") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.engine.mu.Lock()
			ts.engine.fn = tt.fn
			ts.engine.mu.Unlock()

			code, body, _ := ts.get(t, "/top-moves-hybrid?board="+emptyBoard)
			if code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", code)
			}
			if body != "An unknown error occurred" {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestClosedPoolIs500(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.pool.Shutdown()

	code, body, _ := ts.get(t, "/top-moves-hybrid?board="+emptyBoard)
	if code != http.StatusInternalServerError || body != "An unknown error occurred" {
		t.Errorf("GET after shutdown = %d %q", code, body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.srv.URL+"/top-moves-hybrid?board="+emptyBoard, "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", resp.StatusCode)
	}
}

func TestConcurrentRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	const n = 24
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(ts.srv.URL + "/top-moves-hybrid?board=" + emptyBoard)
			if err != nil {
				t.Errorf("GET: %v", err)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, c := range codes {
		if c != http.StatusOK {
			t.Errorf("request %d status = %d", i, c)
		}
	}
	if got := ts.engine.count(); got != n {
		t.Errorf("engine calls = %d, want %d", got, n)
	}
	if st := ts.pool.GetStatus(); st.Completed != n || st.Failed != 0 {
		t.Errorf("pool status = %+v", st)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.get(t, "/top-moves-hybrid?board="+emptyBoard)

	code, body, hdr := ts.get(t, "/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if ct := hdr.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var st map[string]any
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st["workers"] != float64(2) || st["completed"] != float64(1) || st["accepting"] != true {
		t.Errorf("status = %v", st)
	}
	for _, key := range []string{"busy", "pending", "max_pending", "submitted", "failed", "uptime_sec"} {
		if _, ok := st[key]; !ok {
			t.Errorf("status missing %q: %v", key, st)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.get(t, "/ping")

	// the access log records after the response is flushed
	pings := ts.m.RequestTotal.WithLabelValues("GET", "GET /ping", "200")
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(pings) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("ping request never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	code, body, _ := ts.get(t, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, want := range []string{
		`stackrabbit_http_requests_total{method="GET",path="GET /ping",status="200"} 1`,
		"stackrabbit_pool_queue_depth",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.srv.URL+"/rate-move", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestRateLimitedEngineRoutes(t *testing.T) {
	ts := newTestServer(t, func(c *RouterConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	if code, _, _ := ts.get(t, "/top-moves-hybrid?board="+emptyBoard); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code, body, _ := ts.get(t, "/top-moves-hybrid?board="+emptyBoard); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d %q, want 429", code, body)
	}
	// ping is not rate limited
	if code, _, _ := ts.get(t, "/ping"); code != http.StatusOK {
		t.Errorf("ping = %d", code)
	}
}
