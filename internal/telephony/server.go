package telephony

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sebas/voicebridge/internal/bridge/registry"
)

// CallHandler is the surface the media-stream server drives. The
// bridge controller implements it.
type CallHandler interface {
	// Start bridges a new call. Returns the AI session key.
	Start(ctx context.Context, callID string, conn registry.TelephonyConn, streamID, encoding string) (string, error)

	// HandleInboundAudio ingests one base64 companded audio payload.
	HandleInboundAudio(callID, payloadB64 string)

	// Commit signals an utterance boundary for the call.
	Commit(callID string)

	// Stop tears the bridge down. Idempotent.
	Stop(callID string)
}

// Server accepts media-stream WebSocket connections and relays their
// protocol events to the call handler. One goroutine serves one call.
type Server struct {
	handler  CallHandler
	upgrader websocket.Upgrader

	// commitGap is how long the stream must stay silent before the
	// server signals an utterance boundary. Zero disables the policy.
	commitGap time.Duration
}

// NewServer creates a media-stream server on top of the given handler.
func NewServer(handler CallHandler, commitGap time.Duration) *Server {
	return &Server{
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		commitGap: commitGap,
	}
}

// HandleWebSocket upgrades the request and serves the media stream
// until the remote hangs up. Intended to be registered on the HTTP mux.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[Telephony] WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	// The stream has no identity until the start message names it.
	conn := NewConn("conn-"+uuid.New().String(), ws)
	defer conn.Close()

	s.serve(r.Context(), conn)
}

func (s *Server) serve(ctx context.Context, conn *Conn) {
	var (
		callID  string
		started bool
	)

	var commitTimer *time.Timer
	defer func() {
		if commitTimer != nil {
			commitTimer.Stop()
		}
	}()

	defer func() {
		if started {
			s.handler.Stop(callID)
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if started {
				slog.Info("[Telephony] Stream ended", "call_id", callID, "error", err)
			} else {
				slog.Debug("[Telephony] Connection closed before start", "conn_id", conn.ID(), "error", err)
			}
			return
		}

		var msg MediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case EventConnected:
			slog.Debug("[Telephony] Stream connected", "conn_id", conn.ID())

		case EventStart:
			if msg.Start == nil || started {
				continue
			}
			callID = msg.Start.CallSID
			if callID == "" {
				callID = msg.Start.StreamSID
			}

			key, err := s.handler.Start(ctx, callID, conn, msg.Start.StreamSID, msg.Start.MediaFormat.Encoding)
			if err != nil {
				slog.Error("[Telephony] Failed to start bridge", "call_id", callID, "error", err)
				return
			}
			started = true
			slog.Info("[Telephony] Stream started",
				"call_id", callID, "stream_id", msg.Start.StreamSID, "session_key", key,
				"encoding", msg.Start.MediaFormat.Encoding)

		case EventMedia:
			if !started || msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			if s.commitGap > 0 {
				if commitTimer == nil {
					id := callID
					commitTimer = time.AfterFunc(s.commitGap, func() {
						// Fires only between media frames; a commit
						// racing the teardown is a no-op upstream.
						s.handler.Commit(id)
					})
				} else {
					commitTimer.Reset(s.commitGap)
				}
			}
			s.handler.HandleInboundAudio(callID, msg.Media.Payload)

		case EventDTMF:
			if msg.DTMF != nil {
				slog.Debug("[Telephony] DTMF received", "call_id", callID, "digit", msg.DTMF.Digit)
			}

		case EventMark:
			// A mark bounds an utterance; forward it as a commit.
			if started {
				s.handler.Commit(callID)
			}

		case EventStop:
			slog.Info("[Telephony] Stream stopped", "call_id", callID)
			return
		}
	}
}
