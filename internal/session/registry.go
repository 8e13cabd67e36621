package session

import (
	"sort"
	"time"

	"github.com/ernestchu/christmas-tree/internal/protocol"
)

// Registry is the process-wide table of live sessions. It owns membership
// and the control-authority state machine.
//
// Registry is not safe for concurrent use. The gateway hub calls it from its
// single loop goroutine, so every operation runs to completion before the
// next one starts.
type Registry struct {
	sessions map[string]*Session
	// user id -> ids of the sessions the user belongs to
	memberships map[string]map[string]struct{}

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		memberships: make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

// Session looks up a live session.
func (r *Registry) Session(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int { return len(r.sessions) }

// Sessions lists the live sessions, oldest first.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SessionsOf returns the ids of the sessions u belongs to, sorted.
func (r *Registry) SessionsOf(userID string) []string {
	ids := make([]string, 0, len(r.memberships[userID]))
	for id := range r.memberships[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Join adds u to the session, creating it on first use. The first member of
// a session without a controller takes control.
func (r *Registry) Join(sessionID string, u User) (s *Session, created bool) {
	s, ok := r.sessions[sessionID]
	if !ok {
		s = newSession(sessionID, r.now())
		r.sessions[sessionID] = s
		created = true
	}
	s.add(u)
	if s.controller == "" {
		s.controller = u.ID
	}
	if r.memberships[u.ID] == nil {
		r.memberships[u.ID] = make(map[string]struct{})
	}
	r.memberships[u.ID][sessionID] = struct{}{}
	return s, created
}

// Departure describes the outcome of a user leaving one session.
type Departure struct {
	SessionID string
	User      User

	// Deleted is set when the user was the last member.
	Deleted bool

	// ControllerChanged is set when the user held control. Controller is
	// then the elected successor, "" if nobody is left.
	ControllerChanged bool
	Controller        string

	// Remaining are the members still in the session.
	Remaining []User

	// Scene is the blob the new controller must resync to.
	Scene protocol.SceneBlob
}

// Leave removes the user from one session.
func (r *Registry) Leave(sessionID, userID string) (Departure, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return Departure{}, ErrUnknownSession
	}
	u, ok, changed := s.remove(userID)
	if !ok {
		return Departure{}, ErrUnknownUser
	}
	if m := r.memberships[userID]; m != nil {
		delete(m, sessionID)
		if len(m) == 0 {
			delete(r.memberships, userID)
		}
	}
	d := Departure{
		SessionID:         sessionID,
		User:              u,
		ControllerChanged: changed,
		Controller:        s.controller,
		Remaining:         s.Users(),
	}
	if s.Len() == 0 {
		delete(r.sessions, sessionID)
		d.Deleted = true
		return d, nil
	}
	if changed {
		d.Scene = s.Scene()
	}
	return d, nil
}

// LeaveAll removes the user from every session it belongs to.
func (r *Registry) LeaveAll(userID string) []Departure {
	var out []Departure
	for _, id := range r.SessionsOf(userID) {
		if d, err := r.Leave(id, userID); err == nil {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) member(sessionID, userID string) (*Session, User, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, User{}, ErrUnknownSession
	}
	u, ok := s.User(userID)
	if !ok {
		return s, User{}, ErrUnknownUser
	}
	return s, u, nil
}

// RequestControl validates a control request and returns the requester and
// the current holder to notify. The state does not change.
func (r *Registry) RequestControl(sessionID, requesterID string) (requester User, holder string, err error) {
	s, u, err := r.member(sessionID, requesterID)
	if err != nil {
		return User{}, "", err
	}
	switch {
	case s.controller == "":
		return User{}, "", ErrNoController
	case s.controller == requesterID:
		return User{}, "", ErrIsController
	}
	return u, s.controller, nil
}

// OfferControl checks that the sender holds control and that the target is a
// member. The offer is advisory, nothing changes.
func (r *Registry) OfferControl(sessionID, senderID, targetID string) (from User, err error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return User{}, ErrUnknownSession
	}
	if !s.IsController(senderID) {
		return User{}, ErrUnauthorized
	}
	if !s.Has(targetID) {
		return User{}, ErrUnknownUser
	}
	from, _ = s.User(senderID)
	return from, nil
}

// AcceptControl hands control to the user unconditionally. No matching offer
// is required. It returns the scene the new controller resyncs to.
func (r *Registry) AcceptControl(sessionID, userID string) (protocol.SceneBlob, error) {
	s, _, err := r.member(sessionID, userID)
	if err != nil {
		return nil, err
	}
	s.controller = userID
	return s.Scene(), nil
}

// DeclineControl returns the decliner so the offering side can be told who
// refused.
func (r *Registry) DeclineControl(sessionID, userID string) (User, error) {
	_, u, err := r.member(sessionID, userID)
	return u, err
}

// UpdateScene merges delta into the session blob. Only the controller may
// write.
func (r *Registry) UpdateScene(sessionID, senderID string, delta protocol.SceneBlob) error {
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if !s.IsController(senderID) {
		return ErrUnauthorized
	}
	s.scene = s.scene.Merge(delta)
	return nil
}

// UpdatePhotos replaces the photos field of the blob.
func (r *Registry) UpdatePhotos(sessionID, senderID string, photos []string) error {
	delta := protocol.SceneBlob{}
	if err := delta.Set(protocol.FieldPhotos, photos); err != nil {
		return err
	}
	return r.UpdateScene(sessionID, senderID, delta)
}
