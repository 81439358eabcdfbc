package serve

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joshlzx/starswap/internal/browser"
	"github.com/joshlzx/starswap/internal/events"
	"github.com/joshlzx/starswap/internal/ledger"
	"github.com/joshlzx/starswap/internal/orch"
)

// storeOp records one mutation so tests can assert write ordering.
type storeOp struct {
	op    string
	key   string
	value []byte
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ops  []storeOp
}

func (m *memStore) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ops = append(m.ops, storeOp{op: "set", key: key, value: value})
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.ops = append(m.ops, storeOp{op: "delete", key: key})
	return nil
}

func (m *memStore) history(key string) []storeOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storeOp
	for _, op := range m.ops {
		if op.key == key {
			out = append(out, op)
		}
	}
	return out
}

// setupTestServer wires a Server against an in-memory ledger and a browser
// pool whose factory blocks until the test finishes, so launched runs never
// advance past the seeded status record.
func setupTestServer(t *testing.T) (*Server, *ledger.Ledger, *events.Bus, *memStore) {
	t.Helper()

	store := &memStore{data: make(map[string][]byte)}
	led := ledger.New(store)
	bus := events.NewBus()

	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	pool := browser.NewPool(func() (browser.Instance, error) {
		<-gate
		return nil, errors.New("pool closed")
	})

	cfg := orch.DefaultConfig()
	mgr := orch.NewManager(orch.New(pool, led, bus, cfg))

	srv := NewServer(Options{
		Ledger:  led,
		Bus:     bus,
		Manager: mgr,
		Pool:    pool,
		Chrome:  browser.ChromeInfo{Path: "/usr/bin/google-chrome", Version: "139.0", Found: true},
	})
	return srv, led, bus, store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	return resp
}

func loginToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/login", `{"username":"student","password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	data := resp["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("login response missing token")
	}
	return token
}

func TestLoginValidation(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := setupTestServer(t)
	h := srv.Router()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing password", `{"username":"student"}`, http.StatusBadRequest},
		{"missing username", `{"password":"hunter2"}`, http.StatusBadRequest},
		{"malformed json", `{"username":`, http.StatusBadRequest},
		{"valid", `{"username":"student","password":"hunter2"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/login", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			resp := decodeEnvelope(t, rec)
			if _, ok := resp["success"]; !ok {
				t.Error("response missing 'success' envelope field")
			}
		})
	}
}

func TestSubmitRequiresToken(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := setupTestServer(t)
	h := srv.Router()

	body := `{"token":"bogus","num_modules":1,"modules":[{"old_index":"01100","new_indexes":"01101"}]}`
	rec := doJSON(t, h, http.MethodPost, "/api/v1/swaps", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := setupTestServer(t)
	h := srv.Router()
	token := loginToken(t, h)

	tests := []struct {
		name string
		body string
	}{
		{"zero modules", `{"num_modules":0,"modules":[]}`},
		{"count mismatch", `{"num_modules":2,"modules":[{"old_index":"01100","new_indexes":"01101"}]}`},
		{"empty old index", `{"num_modules":1,"modules":[{"old_index":"","new_indexes":"01101"}]}`},
		{"empty candidates", `{"num_modules":1,"modules":[{"old_index":"01100","new_indexes":" , "}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Replace(tt.body, "{", `{"token":"`+token+`",`, 1)
			rec := doJSON(t, h, http.MethodPost, "/api/v1/swaps", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (%s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}
}

func TestSubmitSeedsRecord(t *testing.T) {
	t.Parallel()
	srv, led, _, _ := setupTestServer(t)
	h := srv.Router()
	token := loginToken(t, h)

	body := `{"token":"` + token + `","num_modules":1,"modules":[{"old_index":"01100","new_indexes":"01101, 01102"}]}`
	rec := doJSON(t, h, http.MethodPost, "/api/v1/swaps", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	data := resp["data"].(map[string]any)
	swapID, _ := data["swap_id"].(string)
	if swapID == "" {
		t.Fatal("submit response missing swap_id")
	}

	got := led.Read(swapID)
	if got.Status != ledger.StatusProcessing {
		t.Errorf("seeded status = %q, want %q", got.Status, ledger.StatusProcessing)
	}
	if len(got.Details) != 1 {
		t.Fatalf("seeded details = %d entries, want 1", len(got.Details))
	}
	d := got.Details[0]
	if d.OldIndex != "01100" {
		t.Errorf("old index = %q, want %q", d.OldIndex, "01100")
	}
	if d.NewIndexes != "01101, 01102" {
		t.Errorf("new indexes = %q, want %q", d.NewIndexes, "01101, 01102")
	}
	if d.Message != "Pending..." {
		t.Errorf("detail message = %q, want %q", d.Message, "Pending...")
	}
}

func TestStatusUnknownSwapIsIdle(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := setupTestServer(t)
	h := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/no-such-swap", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got ledger.StatusRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("parse record: %v", err)
	}
	if got.Status != ledger.StatusIdle {
		t.Errorf("status = %q, want %q", got.Status, ledger.StatusIdle)
	}
}

func TestStatusReturnsRecordVerbatim(t *testing.T) {
	t.Parallel()
	srv, led, _, _ := setupTestServer(t)
	h := srv.Router()

	msg := "Your swap request is being processed."
	want := ledger.StatusRecord{
		Status: ledger.StatusProcessing,
		Details: []ledger.DetailEntry{
			{OldIndex: "01100", NewIndexes: "01101", Message: "Pending..."},
		},
		Message: &msg,
	}
	if err := led.Write("swap-1", want); err != nil {
		t.Fatalf("write record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/swap-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var got ledger.StatusRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("parse record: %v", err)
	}
	if got.Status != want.Status || len(got.Details) != 1 || got.Details[0].OldIndex != "01100" {
		t.Errorf("record = %+v, want %+v", got, want)
	}
	if got.Message == nil || *got.Message != msg {
		t.Errorf("message = %v, want %q", got.Message, msg)
	}
}

func TestStopClearsRecord(t *testing.T) {
	t.Parallel()
	srv, led, bus, store := setupTestServer(t)
	h := srv.Router()

	if err := led.Write("swap-2", ledger.StatusRecord{Status: ledger.StatusProcessing}); err != nil {
		t.Fatalf("write record: %v", err)
	}
	updates, cancel := bus.Subscribe("swap-2")
	defer cancel()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/swaps/swap-2/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	select {
	case update := <-updates:
		if update.Status != ledger.StatusStopped {
			t.Errorf("published status = %q, want %q", update.Status, ledger.StatusStopped)
		}
	default:
		t.Error("expected a stopped status on the bus")
	}

	if got := led.Read("swap-2"); got.Status != ledger.StatusIdle {
		t.Errorf("post-stop status = %q, want %q", got.Status, ledger.StatusIdle)
	}

	// The stopped record must hit the store before the delete, so a poll
	// racing the stop sees Stopped rather than stale Processing.
	ops := store.history("swap-2")
	if len(ops) < 2 {
		t.Fatalf("store ops = %d, want at least a set and a delete", len(ops))
	}
	last, prev := ops[len(ops)-1], ops[len(ops)-2]
	if last.op != "delete" {
		t.Fatalf("final store op = %q, want delete", last.op)
	}
	if prev.op != "set" {
		t.Fatalf("op before delete = %q, want set", prev.op)
	}
	var written ledger.StatusRecord
	if err := json.Unmarshal(prev.value, &written); err != nil {
		t.Fatalf("parse written record: %v", err)
	}
	if written.Status != ledger.StatusStopped {
		t.Errorf("written status = %q, want %q", written.Status, ledger.StatusStopped)
	}
}

func TestHealthReport(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := setupTestServer(t)
	h := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp := decodeEnvelope(t, rec)
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("health response missing data: %s", rec.Body.String())
	}
	if data["status"] != "ok" {
		t.Errorf("health status = %v, want ok", data["status"])
	}
	chrome, ok := data["chrome"].(map[string]any)
	if !ok || chrome["found"] != true {
		t.Errorf("chrome info = %v, want found=true", data["chrome"])
	}
}

func TestNextPeriod(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		now    time.Time
		active bool
		sem    string
		year   int
	}{
		{"january window", time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), true, "January", 2026},
		{"august window", time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC), true, "August", 2026},
		{"spring gap", time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), false, "August", 2026},
		{"autumn gap", time.Date(2026, time.November, 20, 0, 0, 0, 0, time.UTC), false, "January", 2027},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextPeriod(tt.now)
			if got.Active != tt.active || got.Semester != tt.sem || got.Year != tt.year {
				t.Errorf("nextPeriod(%v) = %+v, want active=%v %s %d",
					tt.now, got, tt.active, tt.sem, tt.year)
			}
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := setupTestServer(t)
	h := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-abc")
	}
	resp := decodeEnvelope(t, rec)
	if resp["request_id"] != "req-abc" {
		t.Errorf("request_id = %v, want req-abc", resp["request_id"])
	}
}

func TestSwapStream(t *testing.T) {
	t.Parallel()
	srv, led, bus, _ := setupTestServer(t)

	if err := led.Write("swap-ws", ledger.StatusRecord{Status: ledger.StatusProcessing}); err != nil {
		t.Fatalf("write record: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/swaps/swap-ws/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	var first ledger.StatusRecord
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial record: %v", err)
	}
	if first.Status != ledger.StatusProcessing {
		t.Errorf("initial status = %q, want %q", first.Status, ledger.StatusProcessing)
	}

	// Give the subscription time to register before publishing.
	deadline := time.Now().Add(time.Second)
	for bus.Subscribers("swap-ws") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	done := ledger.StatusRecord{Status: ledger.StatusCompleted}
	bus.Publish("swap-ws", done)

	var second ledger.StatusRecord
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read pushed record: %v", err)
	}
	if second.Status != ledger.StatusCompleted {
		t.Errorf("pushed status = %q, want %q", second.Status, ledger.StatusCompleted)
	}
}
