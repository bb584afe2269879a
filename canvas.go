package main

import (
	"time"

	"github.com/samber/lo"
)

// draw appends one stroke segment to the room's history and relays it to
// the other member only; the sender already has it locally.
func (h *Hub) draw(c *Client, s Stroke) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()
	h.canvas = append(h.canvas, s)

	h.broadcastLocked(toOthers, c, DrawMessage{
		Type:   "canvas:draw",
		Stroke: s,
	})
}

// clearCanvas empties history and tells everyone, including the sender, so
// the canonical state stays shared.
func (h *Hub) clearCanvas() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()
	h.canvas = nil

	h.broadcastLocked(toAll, nil, SimpleMessage{Type: "canvas:clear"})
}

// undo removes every segment of the requesting connection's most recent
// stroke, then re-broadcasts a clear followed by the filtered history.
// Clients cannot cheaply erase part of a stroke, so a full replay beats a
// point-level undo event.
func (h *Hub) undo(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	var target string
	for i := len(h.canvas) - 1; i >= 0; i-- {
		if h.canvas[i].author == c.id {
			target = h.canvas[i].StrokeID
			break
		}
	}
	if target == "" {
		return
	}

	h.canvas = lo.Filter(h.canvas, func(s Stroke, _ int) bool {
		return !(s.author == c.id && s.StrokeID == target)
	})

	h.broadcastLocked(toAll, nil, SimpleMessage{Type: "canvas:clear"})
	h.broadcastLocked(toAll, nil, CanvasHistoryMessage{
		Type:    "canvas:history",
		Strokes: append([]Stroke(nil), h.canvas...),
	})
}
