package main

import "encoding/json"

// Messages coming from clients. One envelope for every inbound event, with
// the event name in Type and per-event fields tagged omitempty. The
// truth-or-dare challenge kind rides in "kind", since "type" is taken by
// the envelope.
type ClientMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"` // join_room

	PrevX    float64 `json:"prevX,omitempty"`    // canvas:draw
	PrevY    float64 `json:"prevY,omitempty"`    // canvas:draw
	X        float64 `json:"x,omitempty"`        // canvas:draw, note:move
	Y        float64 `json:"y,omitempty"`        // canvas:draw, note:move
	Color    string  `json:"color,omitempty"`    // canvas:draw
	StrokeID string  `json:"strokeId,omitempty"` // canvas:draw

	MovieID   int    `json:"movieId,omitempty"`   // movie:swipe
	Direction string `json:"direction,omitempty"` // movie:swipe

	Vibe      string `json:"vibe,omitempty"`      // mind:generate_question
	Kind      string `json:"kind,omitempty"`      // truth:generate ("truth" or "dare")
	Intensity string `json:"intensity,omitempty"` // truth:generate
	Reset     bool   `json:"reset,omitempty"`     // <feature>:generate, discard an active round

	Answer   string `json:"answer,omitempty"`   // <feature>:submit
	IsTyping bool   `json:"isTyping,omitempty"` // <feature>:typing

	Note   json.RawMessage `json:"note,omitempty"`   // note:create (opaque, client-owned shape)
	NoteID string          `json:"noteId,omitempty"` // note:move, note:delete
}

// Messages sent to clients

// SimpleMessage carries notifications that need no payload beyond an
// optional human-readable text ("room:error", "room:partner_left",
// "<feature>:partner_submitted", "heart:beat").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Stroke is one segment of a continuous pen-down-to-pen-up gesture. The
// author connection id is server-side bookkeeping for undo and never leaves
// the process.
type Stroke struct {
	PrevX    float64 `json:"prevX"`
	PrevY    float64 `json:"prevY"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
	StrokeID string  `json:"strokeId"`

	author string
}

type DrawMessage struct {
	Type string `json:"type"` // "canvas:draw"
	Stroke
}

type CanvasHistoryMessage struct {
	Type    string   `json:"type"` // "canvas:history"
	Strokes []Stroke `json:"strokes"`
}

type SyncPageMessage struct {
	Type string `json:"type"` // "movie:sync_page"
	Page int    `json:"page"`
}

type MatchFoundMessage struct {
	Type    string `json:"type"` // "movie:match_found"
	MovieID int    `json:"movieId"`
}

// PromptMessage delivers a freshly generated round prompt
// ("mind:new_question" or "truth:new_challenge").
type PromptMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"` // truth/dare only
	Text string `json:"text"`
}

type TypingMessage struct {
	Type     string `json:"type"` // "<feature>:partner_typing"
	IsTyping bool   `json:"isTyping"`
}

// RevealMessage carries the partner's answer, tailored per recipient.
type RevealMessage struct {
	Type   string `json:"type"` // "<feature>:reveal"
	Answer string `json:"answer"`
}

// NoteCreatedMessage relays a fridge note verbatim; the note's shape is
// owned by the client app.
type NoteCreatedMessage struct {
	Type string          `json:"type"` // "note:created"
	Note json.RawMessage `json:"note"`
}

type NoteMovedMessage struct {
	Type string  `json:"type"` // "note:moved"
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type NoteDeletedMessage struct {
	Type   string `json:"type"` // "note:deleted"
	NoteID string `json:"noteId"`
}
