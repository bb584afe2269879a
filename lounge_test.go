package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testGate(gen ContentGenerator) *genGate {
	if gen == nil {
		gen = generatorFunc(func(ctx context.Context, prompt string) (string, error) {
			return "generated prompt", nil
		})
	}
	return newGenGate(gen, time.Second, time.Second)
}

func testManager(gen ContentGenerator) *RoomManager {
	return newRoomManager(0, testGate(gen), nopRoundStore{})
}

func testClient(userID, authRoom string) *Client {
	return &Client{
		send:     make(chan any, 64),
		id:       uuid.NewString(),
		userID:   userID,
		authRoom: canonicalRoomID(authRoom),
	}
}

// drain empties a client's send queue without blocking. Stops cleanly if
// the queue was closed by a drop.
func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// messagesOfType filters a drained queue down to one event name.
func messagesOfType(msgs []any, eventType string) []any {
	var out []any
	for _, msg := range msgs {
		switch m := msg.(type) {
		case SimpleMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case DrawMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case CanvasHistoryMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case SyncPageMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case MatchFoundMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case PromptMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case TypingMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case RevealMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case NoteCreatedMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case NoteMovedMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		case NoteDeletedMessage:
			if m.Type == eventType {
				out = append(out, m)
			}
		}
	}
	return out
}

func TestJoin_TwoUsersAdmitted_ThirdRejected(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	// Given two authorized users in room ABCD
	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))

	// When a third distinct user tries to join
	c3 := testClient("u3", "ABCD")
	err := rm.Join(c3, "ABCD")

	// Then the join is rejected and existing membership is unaffected
	req.ErrorIs(err, ErrRoomFull)
	hub := rm.hub("ABCD")
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	req.Len(hub.clients, 2)
	req.True(hub.clients[c1])
	req.True(hub.clients[c2])
	req.False(hub.clients[c3])
}

func TestJoin_WrongRoomRejected_RegardlessOfOccupancy(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c := testClient("u1", "ABCD")
	err := rm.Join(c, "WXYZ")

	req.ErrorIs(err, ErrWrongRoom)
	req.Nil(c.hub)
}

func TestJoin_MissingRoomRejected(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c := testClient("u1", "ABCD")
	req.ErrorIs(rm.Join(c, "  "), ErrNoRoom)
}

func TestJoin_RoomCodesAreCaseInsensitive(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "abcd")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "AbCd"))
	req.NoError(rm.Join(c2, "abcd"))

	req.Same(c1.hub, c2.hub)
	req.Equal("ABCD", c1.hub.id)
}

func TestJoin_SameUserRejoinsOverStaleConnection(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	// Given a full room where one user's old tab is still registered
	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))

	// When the same user connects again with a fresh connection id
	c1b := testClient("u1", "ABCD")
	err := rm.Join(c1b, "ABCD")

	// Then they are not capacity-rejected by their own ghost
	req.NoError(err)
}

func TestJoin_ResyncSendsHistoryRoundAndSyncPage(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	c1.hub.draw(c1, Stroke{X: 1, Y: 1, StrokeID: "s1", author: c1.id})
	c1.hub.requestRound(c1, "mind", ClientMessage{Type: "mind:generate_question", Vibe: "Deep"})
	drain(c1)

	// When the partner joins afterwards
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c2, "ABCD"))

	msgs := drain(c2)
	history := messagesOfType(msgs, "canvas:history")
	req.Len(history, 1)
	req.Len(history[0].(CanvasHistoryMessage).Strokes, 1)

	prompts := messagesOfType(msgs, "mind:new_question")
	req.Len(prompts, 1)
	req.Equal("generated prompt", prompts[0].(PromptMessage).Text)

	pages := messagesOfType(msgs, "movie:sync_page")
	req.Len(pages, 1)
	req.Equal(syncPageFor("ABCD"), pages[0].(SyncPageMessage).Page)
}

func TestLeave_PurgesAnswersAndLikes_NotifiesPartner(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))
	hub := c1.hub

	hub.requestRound(c1, "mind", ClientMessage{})
	hub.submitAnswer(c1, "mind", "beach")
	hub.swipe(c1, 42, "right")
	drain(c1)
	drain(c2)

	// When c1 disconnects mid-round
	hub.leave(c1)

	// Then its partial contributions are gone
	hub.mu.RLock()
	req.Empty(hub.rounds["mind"].answers)
	req.NotContains(hub.likes, 42)
	hub.mu.RUnlock()

	// And the partner is told
	left := messagesOfType(drain(c2), "room:partner_left")
	req.Len(left, 1)

	// And a fresh connection by the same user does not inherit stale state
	c1b := testClient("u1", "ABCD")
	req.NoError(rm.Join(c1b, "ABCD"))
	hub.swipe(c1b, 42, "right")
	req.Empty(messagesOfType(drain(c2), "movie:match_found"))
}

func TestSlowClientDrop_RejoinIsRefusedWithoutPanic(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	// Given a member whose send buffer is already exhausted by the join
	// resync
	slow := &Client{
		send:     make(chan any, 1),
		id:       uuid.NewString(),
		userID:   "u1",
		authRoom: canonicalRoomID("ABCD"),
	}
	req.NoError(rm.Join(slow, "ABCD"))
	hub := slow.hub

	// When a broadcast overflows the buffer
	hub.clearCanvas()

	// Then the client is dropped from the room
	hub.mu.RLock()
	req.False(hub.clients[slow])
	hub.mu.RUnlock()
	req.True(slow.isClosed())

	// And further sends to it are silent no-ops, not panics
	hub.clearCanvas()

	// And a rejoin over the dropped connection is refused, not admitted
	req.ErrorIs(rm.Join(slow, "ABCD"), ErrConnClosed)
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	req.False(hub.clients[slow])
}

func TestCloseAll_LaterBroadcastsDoNotPanic(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))
	hub := c1.hub

	hub.closeAll()

	req.True(c1.isClosed())
	req.True(c2.isClosed())

	// Stray events racing the teardown must not bring the process down.
	hub.clearCanvas()
	req.False(c1.trySend(SimpleMessage{Type: "heart:beat"}))
}

func TestNotes_RelayedToPartnerOnly(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))
	hub := c1.hub
	drain(c1)
	drain(c2)

	hub.noteCreate(c1, json.RawMessage(`{"id":"n1","content":"buy oat milk"}`))
	hub.noteMove(c1, "n1", 12.5, -3)
	hub.noteDelete(c1, "n1")

	// The author already applied the changes locally
	req.Empty(drain(c1))

	msgs := drain(c2)
	created := messagesOfType(msgs, "note:created")
	req.Len(created, 1)
	req.JSONEq(`{"id":"n1","content":"buy oat milk"}`, string(created[0].(NoteCreatedMessage).Note))

	moved := messagesOfType(msgs, "note:moved")
	req.Len(moved, 1)
	req.Equal("n1", moved[0].(NoteMovedMessage).ID)
	req.Equal(12.5, moved[0].(NoteMovedMessage).X)

	deleted := messagesOfType(msgs, "note:deleted")
	req.Len(deleted, 1)
	req.Equal("n1", deleted[0].(NoteDeletedMessage).NoteID)
}

func TestNotes_EmptyPayloadsAreIgnored(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))
	drain(c1)
	drain(c2)

	c1.hub.noteCreate(c1, nil)
	c1.hub.noteMove(c1, "", 1, 1)
	c1.hub.noteDelete(c1, "")

	req.Empty(drain(c2))
}

func TestRelay_HeartbeatGoesToOtherMemberOnly(t *testing.T) {
	req := require.New(t)
	rm := testManager(nil)

	c1 := testClient("u1", "ABCD")
	c2 := testClient("u2", "ABCD")
	req.NoError(rm.Join(c1, "ABCD"))
	req.NoError(rm.Join(c2, "ABCD"))
	drain(c1)
	drain(c2)

	c1.hub.relay(toOthers, c1, SimpleMessage{Type: "heart:beat"})

	req.Empty(messagesOfType(drain(c1), "heart:beat"))
	req.Len(messagesOfType(drain(c2), "heart:beat"), 1)
}
