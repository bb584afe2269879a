package main

import "encoding/json"

// Fridge notes are a pure relay: the client app owns durable note storage,
// so the hub keeps no note state and forwards each change to the partner
// only (the sender already applied it locally).

func (h *Hub) noteCreate(c *Client, note json.RawMessage) {
	if len(note) == 0 {
		return
	}
	h.relay(toOthers, c, NoteCreatedMessage{Type: "note:created", Note: note})
}

func (h *Hub) noteMove(c *Client, noteID string, x, y float64) {
	if noteID == "" {
		return
	}
	h.relay(toOthers, c, NoteMovedMessage{Type: "note:moved", ID: noteID, X: x, Y: y})
}

func (h *Hub) noteDelete(c *Client, noteID string) {
	if noteID == "" {
		return
	}
	h.relay(toOthers, c, NoteDeletedMessage{Type: "note:deleted", NoteID: noteID})
}
