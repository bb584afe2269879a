package main

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Error taxonomy for the join path. Authorization and capacity failures are
// terminal for that join attempt and surfaced to the offending client only;
// generation failures never reach clients at all (see generator.go).
var (
	ErrBadToken   = errors.New("invalid or missing token")
	ErrWrongRoom  = errors.New("not authorized for this room")
	ErrRoomFull   = errors.New("room is full")
	ErrNoRoom     = errors.New("missing room id")
	ErrConnClosed = errors.New("connection closed")
)

const roomFullText = "Room is full! Only 2 lovers allowed."

// joinErrorText maps a join failure to the message shown to the client.
func joinErrorText(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return roomFullText
	case errors.Is(err, ErrWrongRoom):
		return "You are not authorized to join this room."
	case errors.Is(err, ErrNoRoom):
		return "A room code is required to join."
	case errors.Is(err, ErrConnClosed):
		return "This connection was closed. Please reconnect."
	default:
		return "Unable to join the room. Please try again."
	}
}

func configureLogging(cfg *Config) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
