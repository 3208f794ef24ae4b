package relay

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"stromboard/internal/model"
)

// Kind discriminates real-time events.
type Kind int

const (
	KindJoin Kind = iota
	KindDraw
	KindClear
	KindCursor
	KindText
	KindShape
	KindImage
	KindUndo
	KindRedo
	KindSave
)

// Wire names. users-update and error are server to client only.
const (
	EventJoinSession     = "join-session"
	EventUsersUpdate     = "users-update"
	EventDrawAction      = "draw-action"
	EventClearCanvas     = "clear-canvas"
	EventCursorMove      = "cursor-move"
	EventAddText         = "add-text"
	EventAddShape        = "add-shape"
	EventAddImage        = "add-image"
	EventUndoAction      = "undo-action"
	EventRedoAction      = "redo-action"
	EventSaveCanvasState = "save-canvas-state"
	EventError           = "error"
)

type kindDef struct {
	name    string
	payload func() scoped
}

var kindDefs = map[Kind]kindDef{
	KindJoin:   {EventJoinSession, func() scoped { return &JoinPayload{} }},
	KindDraw:   {EventDrawAction, func() scoped { return &DrawPayload{} }},
	KindClear:  {EventClearCanvas, func() scoped { return &Target{} }},
	KindCursor: {EventCursorMove, func() scoped { return &CursorPayload{} }},
	KindText:   {EventAddText, func() scoped { return &TextPayload{} }},
	KindShape:  {EventAddShape, func() scoped { return &Target{} }},
	KindImage:  {EventAddImage, func() scoped { return &Target{} }},
	KindUndo:   {EventUndoAction, func() scoped { return &Target{} }},
	KindRedo:   {EventRedoAction, func() scoped { return &Target{} }},
	KindSave:   {EventSaveCanvasState, func() scoped { return &SavePayload{} }},
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindDefs))
	for k, def := range kindDefs {
		m[def.name] = k
	}
	return m
}()

// AllKinds lists every inbound kind.
func AllKinds() []Kind {
	return []Kind{KindJoin, KindDraw, KindClear, KindCursor, KindText, KindShape, KindImage, KindUndo, KindRedo, KindSave}
}

func (k Kind) String() string {
	if def, ok := kindDefs[k]; ok {
		return def.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type scoped interface {
	Scope() string
}

// Target is the session a payload names. Empty means the sender's current session.
type Target struct {
	SessionID string `json:"sessionId" validate:"max=128"`
}

func (t *Target) Scope() string { return t.SessionID }

type JoinPayload struct {
	SessionID  string `json:"sessionId" validate:"required,max=128"`
	UserName   string `json:"userName" validate:"max=100"`
	UserAvatar string `json:"userAvatar" validate:"max=2048"`
}

func (p *JoinPayload) Scope() string { return p.SessionID }

type DrawPayload struct {
	Target
	FromX     *float64 `json:"fromX" validate:"required"`
	FromY     *float64 `json:"fromY" validate:"required"`
	ToX       *float64 `json:"toX" validate:"required"`
	ToY       *float64 `json:"toY" validate:"required"`
	Color     string   `json:"color" validate:"required,max=64"`
	BrushSize *float64 `json:"brushSize" validate:"required,gt=0"`
	Tool      string   `json:"tool" validate:"required,max=32"`
}

type CursorPayload struct {
	Target
	X        *float64 `json:"x" validate:"required"`
	Y        *float64 `json:"y" validate:"required"`
	UserName string   `json:"userName" validate:"max=100"`
}

type TextPayload struct {
	Target
	Text  string   `json:"text" validate:"required,max=10000"`
	X     *float64 `json:"x" validate:"required"`
	Y     *float64 `json:"y" validate:"required"`
	Color string   `json:"color" validate:"max=64"`
}

type SavePayload struct {
	SessionID   string            `json:"sessionId" validate:"required,max=128"`
	DrawingData json.RawMessage   `json:"drawingData"`
	Snapshot    model.DrawingData `json:"-"`
}

func (p *SavePayload) Scope() string { return p.SessionID }

// Event is one decoded inbound message. Fields keeps the original payload
// verbatim so relayed copies carry every field the sender set.
type Event struct {
	Kind    Kind
	Fields  map[string]json.RawMessage
	Payload scoped
}

// Scope returns the session id named in the payload, if any.
func (e Event) Scope() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Scope()
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates one inbound frame.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	kind, ok := kindByName[env.Event]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if data[0] != '{' {
		return Event{}, fmt.Errorf("%w: %s payload must be an object", ErrMalformedEvent, env.Event)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}

	payload := kindDefs[kind].payload()
	if err := json.Unmarshal(data, payload); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}
	if err := validate.Struct(payload); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
	}

	if save, ok := payload.(*SavePayload); ok {
		snapshot, err := model.NewDrawingData(save.DrawingData)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Event, err)
		}
		save.Snapshot = snapshot
	}

	return Event{Kind: kind, Fields: fields, Payload: payload}, nil
}

// Encode builds an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: raw})
}

// relayFields shapes the payload peers receive: the original fields with
// the session scope and sender attribution filled in. clear, undo and redo
// are bare signals and carry nothing else.
func relayFields(ev Event, sessionID, senderID string) (map[string]json.RawMessage, error) {
	sid, err := json.Marshal(sessionID)
	if err != nil {
		return nil, err
	}
	sender, err := json.Marshal(senderID)
	if err != nil {
		return nil, err
	}

	var out map[string]json.RawMessage
	switch ev.Kind {
	case KindClear, KindUndo, KindRedo:
		out = make(map[string]json.RawMessage, 2)
	default:
		out = make(map[string]json.RawMessage, len(ev.Fields)+2)
		for k, v := range ev.Fields {
			out[k] = v
		}
	}
	out["sessionId"] = sid
	out["senderId"] = sender
	return out, nil
}

// RosterEntry is the client view of a participant.
type RosterEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	JoinedAt int64  `json:"joinedAt"`
}

// RosterEntries converts a roster to its client view. The result is never nil.
func RosterEntries(roster []Participant) []RosterEntry {
	entries := make([]RosterEntry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, RosterEntry{
			ID:       p.ConnectionID,
			Name:     p.Name,
			Avatar:   p.Avatar,
			JoinedAt: p.JoinedAt.UnixMilli(),
		})
	}
	return entries
}

func rosterFrame(roster []Participant) ([]byte, error) {
	return Encode(EventUsersUpdate, RosterEntries(roster))
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorFrame(err error) ([]byte, error) {
	return Encode(EventError, errorPayload{Code: errorCode(err), Message: err.Error()})
}
