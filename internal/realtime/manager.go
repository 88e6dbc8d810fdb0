package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Config holds the upstream realtime API configuration.
type Config struct {
	URL    string // WebSocket endpoint, e.g. wss://api.openai.com/v1/realtime
	APIKey string
	Model  string
}

// Manager is the production SessionService. Each created session owns
// one upstream WebSocket; its read loop relays audio delta events to
// the bound transport for as long as both sides stay open.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*upstreamSession
}

// NewManager creates a session manager for the given upstream endpoint.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*upstreamSession),
	}
}

// CreateSession dials the upstream realtime API and binds the resulting
// session to the given transport.
func (m *Manager) CreateSession(ctx context.Context, transport Transport, sessionKey string) (Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[sessionKey]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("realtime session already exists: %s", sessionKey)
	}
	// Reserve the key while dialing so a concurrent create for the
	// same key fails fast instead of racing the insert.
	m.sessions[sessionKey] = nil
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.sessions, sessionKey)
		m.mu.Unlock()
	}

	url := m.cfg.URL
	if m.cfg.Model != "" {
		url = fmt.Sprintf("%s?model=%s", url, m.cfg.Model)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+m.cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	s := &upstreamSession{
		key:       sessionKey,
		conn:      conn,
		transport: transport,
		done:      make(chan struct{}),
	}

	// The bridge feeds raw PCM both ways; ask the session for pcm16 on
	// both the input and output buffers.
	if err := s.sendEvent(ClientEvent{
		EventID: newEventID(),
		Type:    EventTypeSessionUpdate,
		Session: json.RawMessage(`{"input_audio_format":"pcm16","output_audio_format":"pcm16"}`),
	}); err != nil {
		_ = conn.Close()
		release()
		return nil, fmt.Errorf("failed to configure session: %w", err)
	}

	m.mu.Lock()
	if _, reserved := m.sessions[sessionKey]; !reserved {
		// CloseSession revoked the reservation while we were dialing.
		m.mu.Unlock()
		s.close()
		return nil, fmt.Errorf("realtime session closed during setup: %s", sessionKey)
	}
	m.sessions[sessionKey] = s
	m.mu.Unlock()

	go s.readLoop()

	slog.Info("[Realtime] Session created", "session_key", sessionKey)
	return s, nil
}

// CloseSession closes the upstream session for the given key. Closing
// an absent session is a no-op; shutdown races are expected.
func (m *Manager) CloseSession(sessionKey string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionKey]
	delete(m.sessions, sessionKey)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	// A nil entry is a reservation for a create still in flight;
	// deleting it makes the creator tear its session down on insert.
	if s != nil {
		s.close()
	}
	slog.Info("[Realtime] Session closed", "session_key", sessionKey)
	return nil
}

// upstreamSession is one live WebSocket to the realtime API.
type upstreamSession struct {
	key       string
	conn      *websocket.Conn
	transport Transport

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// AppendAudio appends wideband PCM to the session's input buffer.
func (s *upstreamSession) AppendAudio(pcm []byte) error {
	return s.sendEvent(ClientEvent{
		EventID: newEventID(),
		Type:    EventTypeInputAudioBufferAppend,
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitInput signals an utterance boundary on the input buffer.
func (s *upstreamSession) CommitInput() error {
	return s.sendEvent(ClientEvent{
		EventID: newEventID(),
		Type:    EventTypeInputAudioBufferCommit,
	})
}

func (s *upstreamSession) sendEvent(ev ClientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal client event: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("realtime session closed: %s", s.key)
	default:
	}

	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop relays upstream audio deltas to the transport until either
// side goes away. Frames arrive and leave in upstream order; a failed
// transport write is a dropped frame, never fatal.
func (s *upstreamSession) readLoop() {
	defer s.close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				slog.Debug("[Realtime] Upstream read ended", "session_key", s.key, "error", err)
			}
			return
		}

		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case EventTypeResponseAudioDelta:
			if ev.Delta == "" || !s.transport.IsOpen() {
				continue
			}
			out, err := json.Marshal(ServerEvent{Type: EventTypeAudio, Delta: ev.Delta})
			if err != nil {
				continue
			}
			if err := s.transport.Send(out); err != nil {
				slog.Debug("[Realtime] Transport write failed, frame dropped",
					"session_key", s.key, "error", err)
			}

		case EventTypeError:
			if ev.Error != nil {
				slog.Warn("[Realtime] Upstream error event",
					"session_key", s.key, "code", ev.Error.Code, "message", ev.Error.Message)
			}

		case EventTypeSessionCreated:
			slog.Debug("[Realtime] Upstream session ready", "session_key", s.key)
		}
	}
}

func (s *upstreamSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
