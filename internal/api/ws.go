package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/editor"
	"github.com/starford/ucdcanvas/internal/interaction"
)

const wsReadLimit = 1 << 20

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server gesture messages.
type ClientMessage struct {
	Type string          `json:"type"` // "drag_over", "drop", "pointer_down", ...
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// DropData is the payload of "drop". A nil payload is a drag that did not
// start on the palette.
type DropData struct {
	Payload *interaction.DragPayload `json:"payload"`
	Screen  canvas.Point             `json:"screen"`
}

// PointerData is the payload of "pointer_down", "pointer_move",
// "pointer_up" and "click".
type PointerData struct {
	Target interaction.Target `json:"target"`
	Screen canvas.Point       `json:"screen"`
}

// EditData is the payload of "edit".
type EditData struct {
	NodeID string `json:"nodeId"`
	Key    string `json:"key"`
	Value  any    `json:"value"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client gesture messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "ack", "document", "affordance", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errUnchanged marks a gesture that left the document as it was.
var errUnchanged = errors.New("unchanged")

// GestureSocket upgrades to a websocket and applies the client's gestures
// to the document named by the URL.
func (h *Handler) GestureSocket(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("ws: accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	send(ctx, conn, ServerMessage{Type: "document", Data: documentResponse(s)})

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("ws: read failed", slog.String("key", s.Key().String()), slog.String("error", err.Error()))
			}
			return
		}
		h.dispatch(ctx, conn, s, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *websocket.Conn, s *editor.Session, msg ClientMessage) {
	var (
		data any
		err  error
	)
	switch msg.Type {
	case "ping":
		send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		return
	case "snapshot":
		send(ctx, conn, ServerMessage{Type: "document", RequestID: msg.ID, Data: documentResponse(s)})
		return
	case "drag_over":
		send(ctx, conn, ServerMessage{Type: "affordance", RequestID: msg.ID, Data: map[string]string{"effect": interaction.DragOver()}})
		return
	case "drop":
		data, err = h.drop(s, msg.Data)
	case "pointer_down":
		data, err = pointerDown(s, msg.Data)
	case "pointer_move":
		data, err = pointerMove(s, msg.Data)
	case "pointer_up":
		data, err = pointerUp(s, msg.Data)
	case "click":
		data, err = click(s, msg.Data)
	case "edit":
		data, err = edit(s, msg.Data)
	case "zoom":
		data, err = zoom(s, msg.Data)
	case "save":
		if err = s.Save(ctx); err == nil {
			data = s.Status()
		}
	default:
		sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		return
	}
	if err != nil {
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &typeErr) {
			sendError(ctx, conn, msg.ID, "invalid_data", fmt.Sprintf("invalid %s data", msg.Type))
			return
		}
		sendError(ctx, conn, msg.ID, errorCode(err), err.Error())
		return
	}
	send(ctx, conn, ServerMessage{Type: "ack", RequestID: msg.ID, Data: data})
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// viewportGesture runs fn as a gesture that only touches the viewport. An
// unchanged viewport does not mark the document changed.
func viewportGesture(s *editor.Session, kind string, fn func(*interaction.Controller)) (canvas.Viewport, error) {
	var vp canvas.Viewport
	err := do(s, kind, func(c *interaction.Controller) error {
		before := c.Document().Viewport()
		fn(c)
		vp = c.Document().Viewport()
		if vp == before {
			return errUnchanged
		}
		return nil
	})
	return vp, err
}

func zoomStep(s *editor.Session, req ZoomRequest) (canvas.Viewport, error) {
	return viewportGesture(s, "zoom", func(c *interaction.Controller) {
		if req.Direction == "in" {
			c.ZoomIn(req.Anchor)
		} else {
			c.ZoomOut(req.Anchor)
		}
	})
}

// do runs fn as a gesture; errUnchanged is not an error for the caller.
func do(s *editor.Session, kind string, fn func(*interaction.Controller) error) error {
	if err := s.Do(kind, fn); err != nil && !errors.Is(err, errUnchanged) {
		return err
	}
	return nil
}

func (h *Handler) drop(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[DropData](raw)
	if err != nil {
		return nil, err
	}
	var node *canvas.Node
	err = do(s, "drop", func(c *interaction.Controller) error {
		n, ok := c.Drop(d.Payload, d.Screen)
		if !ok {
			return errUnchanged
		}
		node = &n
		return nil
	})
	return map[string]any{"added": node != nil, "node": node}, err
}

func pointerDown(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[PointerData](raw)
	if err != nil {
		return nil, err
	}
	var g interaction.Gesture
	s.View(func(c *interaction.Controller) { g = c.PointerDown(d.Target, d.Screen) })
	return map[string]any{"gesture": g}, nil
}

func pointerMove(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[PointerData](raw)
	if err != nil {
		return nil, err
	}
	var g interaction.Gesture
	changed := false
	err = do(s, "pointer_move", func(c *interaction.Controller) error {
		g = c.Gesture()
		if changed = c.PointerMove(d.Screen); !changed {
			return errUnchanged
		}
		return nil
	})
	return map[string]any{"gesture": g, "changed": changed}, err
}

func pointerUp(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[PointerData](raw)
	if err != nil {
		return nil, err
	}
	var rel interaction.Release
	err = do(s, "pointer_up", func(c *interaction.Controller) error {
		var err error
		if rel, err = c.PointerUp(d.Target, d.Screen); err != nil {
			return err
		}
		if !rel.Changed() {
			return errUnchanged
		}
		return nil
	})
	return map[string]any{"edge": rel.Edge, "moved": rel.Moved}, err
}

func click(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[PointerData](raw)
	if err != nil {
		return nil, err
	}
	var res interaction.ClickResult
	var selection string
	err = do(s, "click", func(c *interaction.Controller) error {
		var err error
		if res, err = c.Click(d.Target); err != nil {
			return err
		}
		selection = c.Selection()
		if d.Target.Region != interaction.RegionNodeDelete {
			return errUnchanged
		}
		return nil
	})
	return map[string]any{"propagate": res.Propagate, "selection": selection}, err
}

func edit(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[EditData](raw)
	if err != nil {
		return nil, err
	}
	var node canvas.Node
	err = do(s, "edit", func(c *interaction.Controller) error {
		var err error
		node, err = c.EditField(d.NodeID, d.Key, d.Value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"node": node, "fields": blocks.Render(node.BlockType, node.Content)}, nil
}

func zoom(s *editor.Session, raw json.RawMessage) (any, error) {
	d, err := decode[ZoomRequest](raw)
	if err != nil {
		return nil, err
	}
	if d.Direction != "in" && d.Direction != "out" {
		return nil, fmt.Errorf("%w: direction %q", errBadRequest, d.Direction)
	}
	return zoomStep(s, d)
}

var errBadRequest = errors.New("bad request")

// errorCode turns err into a snake_case code matching its HTTP status.
func errorCode(err error) string {
	if errors.Is(err, errBadRequest) {
		return "bad_request"
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(statusFor(err))), " ", "_")
}

func send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		slog.Debug("ws: write failed", slog.String("error", err.Error()))
	}
}

func sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
