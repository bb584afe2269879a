package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// A round moves idle -> generating -> active -> revealed-and-cleared. The
// hub's rounds map holds at most one round per feature; absence means idle,
// and the reveal deletes the entry, so "revealed" never persists.
type roundState int

const (
	roundGenerating roundState = iota + 1
	roundActive
)

type round struct {
	state     roundState
	kind      string // truth/dare only
	prompt    string
	answers   map[string]string // connection id -> submitted answer
	createdAt time.Time
}

func promptMessageFor(feature string, r *round) PromptMessage {
	msg := PromptMessage{
		Type: feature + ":new_question",
		Text: r.prompt,
	}
	if feature == "truth" {
		msg.Type = "truth:new_challenge"
		msg.Kind = r.kind
	}
	return msg
}

// requestRound starts a new round for the feature unless one is already
// generating or active (rapid double-clicks and duplicate deliveries are
// dropped, not queued). The caller may force a fresh round with reset, but
// a round mid-generation is never replaced: the in-flight request owns its
// round instance, and every later check compares against that instance so
// a concurrent request can only clean up after itself. The upstream call
// happens outside the room lock; only the gate's busy window bounds it.
func (h *Hub) requestRound(c *Client, feature string, msg ClientMessage) {
	h.mu.Lock()
	if existing := h.rounds[feature]; existing != nil {
		if existing.state == roundGenerating || !msg.Reset {
			h.mu.Unlock()
			return
		}
	}
	kind := msg.Kind
	if feature == "truth" && kind != "dare" {
		kind = "truth"
	}
	r := &round{
		state:     roundGenerating,
		kind:      kind,
		createdAt: time.Now(),
	}
	h.rounds[feature] = r
	h.mu.Unlock()

	text, ok := h.gate.generate(context.Background(), h.id, genRequest{
		feature:   feature,
		vibe:      msg.Vibe,
		kind:      kind,
		intensity: msg.Intensity,
	})
	if !ok {
		// Dropped inside the busy window; release our own placeholder and
		// nothing else.
		h.mu.Lock()
		if h.rounds[feature] == r {
			delete(h.rounds, feature)
		}
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	if h.rounds[feature] != r {
		h.mu.Unlock()
		return
	}
	r.state = roundActive
	r.prompt = text
	r.answers = make(map[string]string, 2)
	h.lastActive = time.Now()

	h.broadcastLocked(toAll, nil, promptMessageFor(feature, r))
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id": h.id,
		"feature": feature,
	}).Debug("ROUNDS: Prompt broadcast")

	if feature == "truth" || feature == "daily" {
		// Challenges and daily questions never carry answers over the
		// socket: record on delivery.
		saveRoundAsync(h.store, h.id, RoundRecord{
			Feature:    feature,
			Kind:       kind,
			Prompt:     text,
			RecordedAt: time.Now(),
		})
	}
}

// submitAnswer records one participant's contribution. The partner gets a
// "partner has answered" nudge; once both slots are filled each member
// receives the other's answer, and the round is cleared. Slots are keyed by
// connection id, so arrival order never matters.
func (h *Hub) submitAnswer(c *Client, feature, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rounds[feature]
	if r == nil || r.state != roundActive {
		return
	}

	h.lastActive = time.Now()
	r.answers[c.id] = answer

	h.broadcastLocked(toOthers, c, SimpleMessage{Type: feature + ":partner_submitted"})

	if len(r.answers) < 2 {
		return
	}

	for client := range h.clients {
		if _, answered := r.answers[client.id]; !answered {
			continue
		}
		for connID, theirs := range r.answers {
			if connID == client.id {
				continue
			}
			h.broadcastLocked(toOne, client, RevealMessage{
				Type:   feature + ":reveal",
				Answer: theirs,
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"room_id": h.id,
		"feature": feature,
	}).Debug("ROUNDS: Round revealed")

	saveRoundAsync(h.store, h.id, RoundRecord{
		Feature:    feature,
		Kind:       r.kind,
		Prompt:     r.prompt,
		Answers:    r.answers,
		RecordedAt: time.Now(),
	})

	delete(h.rounds, feature)
}
