// Package session resolves the actor behind a request from identity slots persisted outside
// the record store. A session stays valid until it is cleared.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Slot keys written and read together.
const (
	KeyUserID   = "userId"
	KeyUsername = "username"
	KeyPhone    = "phone"
)

// ErrNoSession is returned when writing to a request that carries no session.
var ErrNoSession = errors.New("session: no session bound to request")

// Actor is the cached identity of the signed-in user.
type Actor struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Phone    string    `json:"phone"`
}

// Store is the session handle passed into every storefront operation.
// Get returns nil when no actor is established.
type Store interface {
	Get(ctx context.Context) (*Actor, error)
	Set(ctx context.Context, actor Actor) error
	Clear(ctx context.Context) error
}

// Provider hands out the Store for a session id.
type Provider interface {
	Session(id string) Store
}

func encode(a Actor) map[string]string {
	return map[string]string{
		KeyUserID:   a.ID.String(),
		KeyUsername: a.Username,
		KeyPhone:    a.Phone,
	}
}

// decode requires both the user id and username slots, as a half-written session is no session.
func decode(slots map[string]string) *Actor {
	rawID, username := slots[KeyUserID], slots[KeyUsername]
	if rawID == "" || username == "" {
		return nil
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	return &Actor{ID: id, Username: username, Phone: slots[KeyPhone]}
}

// Anonymous is the Store of a request without a session.
type Anonymous struct{}

func (Anonymous) Get(context.Context) (*Actor, error) { return nil, nil }
func (Anonymous) Set(context.Context, Actor) error    { return ErrNoSession }
func (Anonymous) Clear(context.Context) error         { return nil }
