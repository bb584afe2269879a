package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSwipe_LeftSwipeIsANoop(t *testing.T) {
	req := require.New(t)
	hub, c1, _ := testRoom(t, req)

	hub.swipe(c1, 42, "left")

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	req.Empty(hub.likes)
}

func TestSwipe_LikeIsIdempotentPerConnection(t *testing.T) {
	req := require.New(t)
	hub, c1, _ := testRoom(t, req)

	hub.swipe(c1, 42, "right")
	hub.swipe(c1, 42, "right")

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	req.Len(hub.likes[42], 1)
}

func TestSwipe_MatchFiresExactlyOnceAfterSecondDistinctLike(t *testing.T) {
	req := require.New(t)
	hub, c1, c2 := testRoom(t, req)

	// When only one member has liked, nothing fires
	hub.swipe(c1, 42, "right")
	req.Empty(messagesOfType(drain(c1), "movie:match_found"))
	req.Empty(messagesOfType(drain(c2), "movie:match_found"))

	// When the partner likes the same movie, both members get the match
	hub.swipe(c2, 42, "right")
	m1 := messagesOfType(drain(c1), "movie:match_found")
	m2 := messagesOfType(drain(c2), "movie:match_found")
	req.Len(m1, 1)
	req.Len(m2, 1)
	req.Equal(42, m1[0].(MatchFoundMessage).MovieID)

	// Duplicate likes after the match never re-fire it
	hub.swipe(c1, 42, "right")
	hub.swipe(c2, 42, "right")
	req.Empty(messagesOfType(drain(c1), "movie:match_found"))
	req.Empty(messagesOfType(drain(c2), "movie:match_found"))
}

func TestSwipe_DifferentMoviesDoNotMatch(t *testing.T) {
	req := require.New(t)
	hub, c1, c2 := testRoom(t, req)

	hub.swipe(c1, 42, "right")
	hub.swipe(c2, 43, "right")

	req.Empty(messagesOfType(drain(c1), "movie:match_found"))
	req.Empty(messagesOfType(drain(c2), "movie:match_found"))
}

func TestSyncPageFor_DeterministicAndInRange(t *testing.T) {
	req := require.New(t)

	req.Equal(syncPageFor("ABCD"), syncPageFor("ABCD"))

	for _, roomID := range []string{"ABCD", "WXYZ", "LOVEBIRDS", "X"} {
		page := syncPageFor(roomID)
		req.GreaterOrEqual(page, 1)
		req.LessOrEqual(page, syncPageSpread)
	}
}
