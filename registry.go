package main

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// canonicalRoomID normalizes a room code for case-insensitive comparison.
func canonicalRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

// RoomManager owns the set of live rooms, keyed by canonical room code.
// Rooms are created lazily on first join and, if an idle timeout is
// configured, reaped once nothing has touched them for that long.
type RoomManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration

	gate  *genGate
	store RoundStore
}

func newRoomManager(idleTimeout time.Duration, gate *genGate, store RoundStore) *RoomManager {
	rm := &RoomManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		gate:        gate,
		store:       store,
	}
	if idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

// hub returns the room's hub, creating it on first use. roomID must already
// be canonical.
func (rm *RoomManager) hub(roomID string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if hub, ok := rm.hubs[roomID]; ok {
		return hub
	}

	hub := newHub(roomID, rm.gate, rm.store)
	rm.hubs[roomID] = hub
	logrus.WithField("room_id", roomID).Info("ROOMS: Room created")
	return hub
}

// Join runs the membership flow for a connection that has already passed
// the authorization gate: the requested room must match the room the
// identity provider put in the client's profile, and the room must have
// space for this user.
func (rm *RoomManager) Join(c *Client, requested string) error {
	roomID := canonicalRoomID(requested)
	if roomID == "" {
		return ErrNoRoom
	}
	if roomID != c.authRoom {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": c.userID,
		}).Warn("ROOMS: Join rejected, user not authorized for room")
		return ErrWrongRoom
	}

	hub := rm.hub(roomID)
	if err := hub.admit(c); err != nil {
		return err
	}
	c.hub = hub
	return nil
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rm.idleTimeout)

		rm.mu.Lock()
		for id, hub := range rm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(rm.hubs, id)
				logrus.WithField("room_id", id).Info("ROOMS: Idle room reaped")
				go hub.closeAll()
			}
		}
		rm.mu.Unlock()
	}
}
