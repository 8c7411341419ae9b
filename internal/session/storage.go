package session

import "errors"

// ErrNoSession is returned when nothing has been persisted yet.
var ErrNoSession = errors.New("no stored session")

// Identity is who the token belongs to: an expert account on the console
// side, or a plain phone number on the user side.
type Identity struct {
	ExpertID   string
	ExpertName string
	Phone      string
}

// Storage persists the little client-side state that must survive restarts:
// the authentication token with its identity, and per-chat phone numbers so
// returning users are pre-filled.
type Storage interface {
	SaveSession(token string, id Identity) error
	LoadSession() (string, Identity, error)
	DeleteSession() error

	SavePhone(chatID int64, phone string) error
	LoadPhone(chatID int64) (string, error)

	Close() error
}
