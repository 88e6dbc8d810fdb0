package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeUpstream plays the realtime API: it accepts one WebSocket, records
// every client event, and can push server events back down.
type fakeUpstream struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []ClientEvent
	headers  http.Header
	query    string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = ws
		f.headers = r.Header.Clone()
		f.query = r.URL.RawQuery
		f.mu.Unlock()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var ev ClientEvent
			if json.Unmarshal(data, &ev) == nil {
				f.mu.Lock()
				f.received = append(f.received, ev)
				f.mu.Unlock()
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeUpstream) push(t *testing.T, ev ServerEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal server event: %v", err)
	}
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		t.Fatal("no upstream connection yet")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push server event: %v", err)
	}
}

func (f *fakeUpstream) events() []ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ClientEvent, len(f.received))
	copy(out, f.received)
	return out
}

// memTransport collects what a session sends toward the telephony leg.
type memTransport struct {
	mu     sync.Mutex
	open   bool
	frames [][]byte
}

func newMemTransport() *memTransport { return &memTransport{open: true} }

func (tr *memTransport) IsOpen() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.open
}

func (tr *memTransport) Send(data []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	tr.frames = append(tr.frames, frame)
	return nil
}

func (tr *memTransport) OnEvent(fn func([]byte)) {}

func (tr *memTransport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.open = false
	return nil
}

func (tr *memTransport) sent() [][]byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([][]byte, len(tr.frames))
	copy(out, tr.frames)
	return out
}

func pollFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCreateSessionConfiguresUpstream(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test", Model: "test-model"})

	tr := newMemTransport()
	sess, err := m.CreateSession(context.Background(), tr, "rt-call-1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	defer m.CloseSession("rt-call-1")
	if sess == nil {
		t.Fatal("CreateSession returned nil session")
	}

	pollFor(t, func() bool { return len(up.events()) >= 1 })

	evs := up.events()
	if evs[0].Type != EventTypeSessionUpdate {
		t.Errorf("first event type = %q, want %q", evs[0].Type, EventTypeSessionUpdate)
	}
	var cfg struct {
		InputFormat  string `json:"input_audio_format"`
		OutputFormat string `json:"output_audio_format"`
	}
	if err := json.Unmarshal(evs[0].Session, &cfg); err != nil {
		t.Fatalf("session payload did not parse: %v", err)
	}
	if cfg.InputFormat != "pcm16" || cfg.OutputFormat != "pcm16" {
		t.Errorf("session formats = %q/%q, want pcm16/pcm16", cfg.InputFormat, cfg.OutputFormat)
	}

	up.mu.Lock()
	auth := up.headers.Get("Authorization")
	beta := up.headers.Get("OpenAI-Beta")
	query := up.query
	up.mu.Unlock()
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", auth)
	}
	if beta != "realtime=v1" {
		t.Errorf("OpenAI-Beta = %q, want realtime=v1", beta)
	}
	if query != "model=test-model" {
		t.Errorf("query = %q, want model=test-model", query)
	}
}

func TestCreateSessionRejectsDuplicateKey(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test"})

	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err != nil {
		t.Fatalf("first CreateSession failed: %v", err)
	}
	defer m.CloseSession("rt-call-1")

	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err == nil {
		t.Fatal("second CreateSession with same key succeeded, want error")
	}
}

func TestAppendAudioAndCommitReachUpstream(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test"})

	sess, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	defer m.CloseSession("rt-call-1")

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := sess.AppendAudio(pcm); err != nil {
		t.Fatalf("AppendAudio failed: %v", err)
	}
	if err := sess.CommitInput(); err != nil {
		t.Fatalf("CommitInput failed: %v", err)
	}

	// session.update, append, commit — in that order.
	pollFor(t, func() bool { return len(up.events()) >= 3 })

	evs := up.events()
	if evs[1].Type != EventTypeInputAudioBufferAppend {
		t.Errorf("second event type = %q, want %q", evs[1].Type, EventTypeInputAudioBufferAppend)
	}
	if got := evs[1].Audio; got != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("append audio = %q, want base64 of sent pcm", got)
	}
	if evs[2].Type != EventTypeInputAudioBufferCommit {
		t.Errorf("third event type = %q, want %q", evs[2].Type, EventTypeInputAudioBufferCommit)
	}
	for i, ev := range evs {
		if ev.EventID == "" {
			t.Errorf("event %d has empty event_id", i)
		}
	}
}

func TestAudioDeltaRelayedToTransport(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test"})

	tr := newMemTransport()
	if _, err := m.CreateSession(context.Background(), tr, "rt-call-1"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	defer m.CloseSession("rt-call-1")

	delta := base64.StdEncoding.EncodeToString([]byte{0x10, 0x20, 0x30, 0x40})
	up.push(t, ServerEvent{Type: EventTypeSessionCreated})
	up.push(t, ServerEvent{Type: EventTypeResponseAudioDelta, Delta: delta})
	up.push(t, ServerEvent{Type: "response.done"})

	pollFor(t, func() bool { return len(tr.sent()) >= 1 })

	frames := tr.sent()
	if len(frames) != 1 {
		t.Fatalf("transport received %d frames, want 1", len(frames))
	}
	var ev ServerEvent
	if err := json.Unmarshal(frames[0], &ev); err != nil {
		t.Fatalf("relayed frame did not parse: %v", err)
	}
	if ev.Type != EventTypeAudio {
		t.Errorf("relayed type = %q, want %q", ev.Type, EventTypeAudio)
	}
	if ev.Delta != delta {
		t.Errorf("relayed delta = %q, want original delta", ev.Delta)
	}
}

func TestClosedTransportSkipsRelay(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test"})

	tr := newMemTransport()
	if _, err := m.CreateSession(context.Background(), tr, "rt-call-1"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	defer m.CloseSession("rt-call-1")

	_ = tr.Close()
	up.push(t, ServerEvent{Type: EventTypeResponseAudioDelta, Delta: "AAAA"})

	time.Sleep(50 * time.Millisecond)
	if got := len(tr.sent()); got != 0 {
		t.Errorf("closed transport received %d frames, want 0", got)
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test"})

	sess, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := m.CloseSession("rt-call-1"); err != nil {
		t.Fatalf("first CloseSession failed: %v", err)
	}
	if err := m.CloseSession("rt-call-1"); err != nil {
		t.Fatalf("second CloseSession failed: %v", err)
	}
	if err := m.CloseSession("never-created"); err != nil {
		t.Fatalf("CloseSession on absent key failed: %v", err)
	}

	if err := sess.AppendAudio([]byte{0x00}); err == nil {
		t.Error("AppendAudio on closed session succeeded, want error")
	}

	// The key is free again.
	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err != nil {
		t.Fatalf("CreateSession after close failed: %v", err)
	}
	_ = m.CloseSession("rt-call-1")
}

func TestCreateSessionConcurrentSameKey(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: up.url(), APIKey: "sk-test"})

	const racers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one bridge may hold the key; the losers must fail fast
	// without touching the winner's session.
	if got := successes.Load(); got != 1 {
		t.Fatalf("CreateSession succeeded %d times for one key, want 1", got)
	}
	if err := m.CloseSession("rt-call-1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	// Closing released the key, so it is reusable.
	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err != nil {
		t.Fatalf("CreateSession after close failed: %v", err)
	}
	_ = m.CloseSession("rt-call-1")
}

func TestCreateSessionDialFailureReleasesKey(t *testing.T) {
	up := newFakeUpstream(t)
	m := NewManager(Config{URL: "ws://127.0.0.1:1", APIKey: "sk-test"})
	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err == nil {
		t.Fatal("CreateSession against dead endpoint succeeded, want error")
	}

	// The failed attempt must not keep the key reserved.
	m.cfg.URL = up.url()
	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err != nil {
		t.Fatalf("CreateSession after dial failure: %v", err)
	}
	_ = m.CloseSession("rt-call-1")
}

func TestCreateSessionDialFailure(t *testing.T) {
	m := NewManager(Config{URL: "ws://127.0.0.1:1", APIKey: "sk-test"})
	if _, err := m.CreateSession(context.Background(), newMemTransport(), "rt-call-1"); err == nil {
		t.Fatal("CreateSession against dead endpoint succeeded, want error")
	}
}
