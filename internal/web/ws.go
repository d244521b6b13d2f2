package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/pkg/audio"
)

// writeTimeout bounds a single WebSocket write.
const writeTimeout = 10 * time.Second

// WebSocket-only event kinds. The others are [pipeline.EventKind]s.
const (
	EventDone  pipeline.EventKind = "done"
	EventError pipeline.EventKind = "error"
)

// Message is a JSON text message sent to WebSocket clients.
type Message struct {
	Kind     pipeline.EventKind `json:"kind"`
	RunID    string             `json:"run_id,omitempty"`
	Stage    pipeline.Stage     `json:"stage,omitempty"`
	State    *pipeline.State    `json:"state,omitempty"`
	Text     string             `json:"text,omitempty"`
	Encoding string             `json:"encoding,omitempty"`
	Bytes    int                `json:"bytes,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// control is a JSON text message sent by WebSocket clients.
type control struct {
	Type string `json:"type"`
}

// wsConn is a [pipeline.Sink] writing to one WebSocket connection. Writes are
// serialized; a failed write is logged and dropped.
type wsConn struct {
	conn *websocket.Conn
	ctx  context.Context

	mu sync.Mutex
}

var _ pipeline.Sink = (*wsConn)(nil)

func (c *wsConn) write(typ websocket.MessageType, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, typ, data); err != nil && c.ctx.Err() == nil {
		observe.Logger(c.ctx).Debug("web: websocket write failed", "err", err)
	}
}

func (c *wsConn) send(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		observe.Logger(c.ctx).Warn("web: failed to encode message", "kind", m.Kind, "err", err)
		return
	}
	c.write(websocket.MessageText, data)
}

func (c *wsConn) Capture(_ context.Context, capture audio.Capture) {
	c.send(Message{Kind: pipeline.EventCapture, Encoding: capture.Encoding, Bytes: capture.Len()})
}

func (c *wsConn) StageStarted(_ context.Context, stage pipeline.Stage) {
	c.send(Message{Kind: pipeline.EventStageStarted, Stage: stage})
}

func (c *wsConn) StageText(_ context.Context, stage pipeline.Stage, text string) {
	c.send(Message{Kind: pipeline.EventStageText, Stage: stage, Text: text})
}

// Audio announces the reply and sends it as one binary message.
func (c *wsConn) Audio(_ context.Context, data []byte, encoding string) {
	c.send(Message{Kind: pipeline.EventAudio, Stage: pipeline.StageSynthesis, Encoding: encoding, Bytes: len(data)})
	c.write(websocket.MessageBinary, slices.Clone(data))
}

func (c *wsConn) StageFailed(_ context.Context, err *pipeline.StageError) {
	c.send(Message{Kind: pipeline.EventStageFailed, Stage: err.Stage, Error: err.Message()})
}

// handleWebSocket runs every binary message of the connection as a capture.
// A capture sent while a run is active is refused with an error message. The
// text message {"type":"cancel"} cancels the active run. Closing the
// connection cancels it too.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		// Accept has already written the error response.
		observe.Logger(r.Context()).Debug("web: websocket upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.opts.MaxUploadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	log := observe.Logger(ctx).With("remote", r.RemoteAddr)
	c := &wsConn{conn: conn, ctx: ctx}
	key := runKey(r)

	var (
		mu        sync.Mutex
		cancelRun context.CancelFunc
	)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					log.Debug("web: websocket read ended", "err", err)
				}
			}
			return
		}

		if typ == websocket.MessageText {
			var ctl control
			if err := json.Unmarshal(data, &ctl); err != nil || ctl.Type != "cancel" {
				c.send(Message{Kind: EventError, Error: `unknown control message, expected {"type":"cancel"}`})
				continue
			}
			mu.Lock()
			if cancelRun != nil {
				cancelRun()
			}
			mu.Unlock()
			continue
		}

		mu.Lock()
		busy := cancelRun != nil
		mu.Unlock()
		if busy {
			c.send(Message{Kind: EventError, Error: "a run is already active on this connection"})
			continue
		}
		if !s.allowRun(r, key) {
			c.send(Message{Kind: EventError, Error: "too many runs, slow down"})
			continue
		}

		capture := audio.Capture{Data: data, Encoding: audio.SniffEncoding(data, audio.EncodingWAV)}
		runCtx, runCancel := context.WithCancel(ctx)
		mu.Lock()
		cancelRun = runCancel
		mu.Unlock()

		orch := s.orchestrator()
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := orch.Run(runCtx, capture, c)

			mu.Lock()
			cancelRun = nil
			mu.Unlock()
			runCancel()

			if errors.Is(err, pipeline.ErrEmptyCapture) {
				c.send(Message{Kind: EventError, Error: "empty capture"})
				return
			}
			c.send(Message{Kind: EventDone, RunID: rep.ID, State: &rep.State})
		}()
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		opts.InsecureSkipVerify = true
		return opts
	}
	opts.OriginPatterns = s.opts.AllowedOrigins
	return opts
}
