package session

import (
	"time"

	"github.com/ernestchu/christmas-tree/internal/protocol"
)

// User is a member of a session. The id is the connection id of the socket
// that joined.
type User struct {
	ID   string
	Name string
}

func (u User) Wire() protocol.User { return protocol.User{ID: u.ID, Name: u.Name} }

// Session is a named room sharing one scene state. Members are kept in
// join order; that order decides the successor when the controller leaves.
type Session struct {
	ID        string
	CreatedAt time.Time

	users      []User
	controller string
	scene      protocol.SceneBlob
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now}
}

// Users returns a copy of the member list in join order.
func (s *Session) Users() []User {
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}

// WireUsers returns the member list as sent to clients.
func (s *Session) WireUsers() []protocol.User {
	out := make([]protocol.User, len(s.users))
	for i, u := range s.users {
		out[i] = u.Wire()
	}
	return out
}

func (s *Session) Len() int { return len(s.users) }

func (s *Session) User(id string) (User, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.users[i], true
	}
	return User{}, false
}

func (s *Session) Has(id string) bool { return s.indexOf(id) >= 0 }

// Controller returns the current controller id, "" when unassigned.
func (s *Session) Controller() string { return s.controller }

func (s *Session) IsController(id string) bool { return id != "" && s.controller == id }

// Scene returns a copy of the current scene blob.
func (s *Session) Scene() protocol.SceneBlob { return s.scene.Clone() }

// Joined builds the snapshot sent to the user with the given id.
func (s *Session) Joined(userID string) protocol.Joined {
	return protocol.Joined{
		SessionID:    s.ID,
		UserID:       userID,
		Users:        s.WireUsers(),
		ControllerID: protocol.NullableID(s.controller),
		SceneState:   s.Scene(),
	}
}

func (s *Session) indexOf(id string) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// add appends u, or renames it in place when already a member.
func (s *Session) add(u User) {
	if i := s.indexOf(u.ID); i >= 0 {
		s.users[i].Name = u.Name
		return
	}
	s.users = append(s.users, u)
}

// remove drops the member and, when it held control, elects the first
// remaining member. changed reports whether the controller changed.
func (s *Session) remove(id string) (u User, ok, changed bool) {
	i := s.indexOf(id)
	if i < 0 {
		return User{}, false, false
	}
	u = s.users[i]
	s.users = append(s.users[:i], s.users[i+1:]...)
	if s.controller != id {
		return u, true, false
	}
	s.controller = ""
	if len(s.users) > 0 {
		s.controller = s.users[0].ID
	}
	return u, true, true
}
