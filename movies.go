package main

import (
	"hash/fnv"
	"time"

	"github.com/sirupsen/logrus"
)

const syncPageSpread = 500

// syncPageFor derives the movie catalog page for a room from its code, so
// both members page through the same candidate set without coordinating.
func syncPageFor(roomID string) int {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(roomID))
	return int(hash.Sum32()%syncPageSpread) + 1
}

// swipe records a positive swipe and broadcasts a match once both
// connections have liked the same movie. Left swipes carry no state. The
// liker set is idempotent per connection, and is retained after a match;
// the idempotent append is what prevents a duplicate like from re-firing
// the match.
func (h *Hub) swipe(c *Client, movieID int, direction string) {
	if direction != "right" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	likers := h.likes[movieID]
	if likers == nil {
		likers = make(map[string]bool, 2)
		h.likes[movieID] = likers
	}
	if likers[c.id] {
		return
	}
	likers[c.id] = true

	if len(likers) == 2 {
		logrus.WithFields(logrus.Fields{
			"room_id":  h.id,
			"movie_id": movieID,
		}).Info("MOVIES: Match found")

		h.broadcastLocked(toAll, nil, MatchFoundMessage{
			Type:    "movie:match_found",
			MovieID: movieID,
		})
	}
}
