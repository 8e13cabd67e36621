package reconciler

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/rs/zerolog"
)

var (
	ErrNotJoined     = errors.New("not in a session")
	ErrNotController = errors.New("only the controller can do that")
	ErrIsController  = errors.New("you already hold control")
	ErrNoOffer       = errors.New("no control offer to answer")
	ErrUnknownUser   = errors.New("no such user in the session")
)

// Sender delivers one message to the server.
type Sender interface {
	Send(t string, payload any) error
}

// Hooks let the peer layer follow role and roster changes. They run on the
// goroutine that delivered the triggering event, outside the reconciler lock.
type Hooks struct {
	// RoleChanged fires when this participant gains or loses control.
	RoleChanged func(isController bool)
	// ControllerChanged fires on every control:changed and on join.
	ControllerChanged func(controllerID string)
	// UserLeft fires after a member left the session.
	UserLeft func(userID string)
}

// Reconciler keeps the local view of one session in line with the server
// and decides whether local input may mutate the shared scene.
type Reconciler struct {
	send     Sender
	debounce *Debouncer
	log      zerolog.Logger
	status   chan string

	// isController is read at call time by every input path; it is never
	// captured by value.
	isController atomic.Bool

	mu           sync.Mutex
	hooks        Hooks
	sessionID    string
	selfID       string
	controllerID string
	users        []protocol.User
	state        State
	requests     []Request
	offer        *Offer
}

// New creates a reconciler whose outbound scene updates are debounced by
// window.
func New(send Sender, window time.Duration, log zerolog.Logger) *Reconciler {
	r := &Reconciler{
		send:   send,
		log:    log.With().Str("mod", "reconciler").Logger(),
		status: make(chan string, 32),
		state:  State{Mode: DefaultMode},
	}
	r.debounce = NewDebouncer(window, r.flush)
	return r
}

func (r *Reconciler) SetHooks(h Hooks) {
	r.mu.Lock()
	r.hooks = h
	r.mu.Unlock()
}

// Status carries free-text, UX-facing notices. Notices are dropped when
// nobody keeps up with the channel.
func (r *Reconciler) Status() <-chan string { return r.status }

func (r *Reconciler) notify(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	select {
	case r.status <- msg:
	default:
		r.log.Debug().Str("status", msg).Msg("status dropped")
	}
}

// Notify posts a notice on the status channel on behalf of another
// component, e.g. a capture failure.
func (r *Reconciler) Notify(format string, args ...any) { r.notify(format, args...) }

func (r *Reconciler) IsController() bool { return r.isController.Load() }

func (r *Reconciler) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Reconciler) SelfID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfID
}

func (r *Reconciler) Controller() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controllerID
}

// Users returns the roster in join order.
func (r *Reconciler) Users() []protocol.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.users)
}

func (r *Reconciler) UserName(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(id); i >= 0 {
		return r.users[i].Name
	}
	return id
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Requests returns pending control requests, oldest first.
func (r *Reconciler) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.requests)
}

// PendingOffer returns the control offer awaiting an answer, if any.
func (r *Reconciler) PendingOffer() (Offer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offer == nil {
		return Offer{}, false
	}
	return *r.offer, true
}

func (r *Reconciler) indexOf(id string) int {
	return slices.IndexFunc(r.users, func(u protocol.User) bool { return u.ID == id })
}

// recompute refreshes the role cell; callers hold mu.
func (r *Reconciler) recompute() (changed, isController bool) {
	isController = r.selfID != "" && r.controllerID == r.selfID
	return r.isController.Swap(isController) != isController, isController
}

// afterRoleChange runs the transition effects without holding mu.
func (r *Reconciler) afterRoleChange(hooks Hooks, changed, isController bool) {
	if !changed {
		return
	}
	if isController {
		r.notify("you now control the tree")
	} else {
		r.debounce.Stop()
		r.notify("you are now watching")
	}
	r.log.Debug().Bool("controller", isController).Msg("role changed")
	if hooks.RoleChanged != nil {
		hooks.RoleChanged(isController)
	}
}

// ApplyJoined installs the snapshot the server sent on join.
func (r *Reconciler) ApplyJoined(j protocol.Joined) {
	r.mu.Lock()
	r.sessionID = j.SessionID
	r.selfID = j.UserID
	r.controllerID = protocol.ID(j.ControllerID)
	r.users = slices.Clone(j.Users)
	r.requests = nil
	r.offer = nil
	r.state = State{Mode: DefaultMode}
	r.state.apply(j.SceneState)
	changed, isController := r.recompute()
	hooks, controller := r.hooks, r.controllerID
	r.mu.Unlock()

	r.notify("joined %s as %s", j.SessionID, r.UserName(j.UserID))
	r.afterRoleChange(hooks, changed, isController)
	if hooks.ControllerChanged != nil {
		hooks.ControllerChanged(controller)
	}
}

func (r *Reconciler) ApplyUserJoined(u protocol.User) {
	r.mu.Lock()
	if i := r.indexOf(u.ID); i >= 0 {
		old := r.users[i].Name
		r.users[i] = u
		r.mu.Unlock()
		if old != u.Name {
			r.notify("%s is now %s", old, u.Name)
		}
		return
	}
	r.users = append(r.users, u)
	r.mu.Unlock()
	r.notify("%s joined", u.Name)
}

func (r *Reconciler) ApplyUserLeft(id string) {
	r.mu.Lock()
	name := id
	if i := r.indexOf(id); i >= 0 {
		name = r.users[i].Name
		r.users = slices.Delete(r.users, i, i+1)
	}
	r.requests = slices.DeleteFunc(r.requests, func(q Request) bool { return q.ID == id })
	if r.offer != nil && r.offer.FromID == id {
		r.offer = nil
	}
	hooks := r.hooks
	r.mu.Unlock()

	r.notify("%s left", name)
	if hooks.UserLeft != nil {
		hooks.UserLeft(id)
	}
}

// ApplyControlChanged records the new controller. Pending requests and
// offers are void after any change.
func (r *Reconciler) ApplyControlChanged(controllerID string) {
	r.mu.Lock()
	r.controllerID = controllerID
	r.requests = nil
	r.offer = nil
	changed, isController := r.recompute()
	hooks := r.hooks
	r.mu.Unlock()

	if controllerID == "" {
		r.notify("nobody controls the tree")
	} else if !isController {
		r.notify("%s now controls the tree", r.UserName(controllerID))
	}
	r.afterRoleChange(hooks, changed, isController)
	if hooks.ControllerChanged != nil {
		hooks.ControllerChanged(controllerID)
	}
}

// ApplySceneState applies a broadcast delta. Ignored while in control: the
// controller's own state is authoritative.
func (r *Reconciler) ApplySceneState(delta protocol.SceneBlob) {
	if r.isController.Load() {
		r.log.Debug().Msg("ignoring scene:state while in control")
		return
	}
	r.mu.Lock()
	r.state.apply(delta)
	r.mu.Unlock()
}

func (r *Reconciler) ApplyPhotos(photos []string) {
	if r.isController.Load() {
		r.log.Debug().Msg("ignoring photos:update while in control")
		return
	}
	r.mu.Lock()
	r.state.Photos = slices.Clone(photos)
	r.mu.Unlock()
}

// ApplySceneSync replaces local state with the authoritative blob. It is
// addressed to a newly promoted controller, so it applies in either role.
func (r *Reconciler) ApplySceneSync(blob protocol.SceneBlob) {
	r.mu.Lock()
	r.state.apply(blob)
	r.mu.Unlock()
}

func (r *Reconciler) ApplyControlRequested(req protocol.ControlRequestedNotice) {
	r.mu.Lock()
	if !slices.ContainsFunc(r.requests, func(q Request) bool { return q.ID == req.RequesterID }) {
		r.requests = append(r.requests, Request{ID: req.RequesterID, Name: req.RequesterName})
	}
	r.mu.Unlock()
	r.notify("%s asks for control (offer %s)", req.RequesterName, req.RequesterID)
}

func (r *Reconciler) ApplyControlOffer(o protocol.ControlOfferNotice) {
	r.mu.Lock()
	r.offer = &Offer{FromID: o.FromID, FromName: o.FromName}
	r.mu.Unlock()
	r.notify("%s offers you control (accept or decline)", o.FromName)
}

func (r *Reconciler) ApplyControlDeclined(d protocol.ControlDeclinedNotice) {
	r.notify("%s declined control", d.TargetName)
}

// SetMode changes the scene mode. Inert unless in control.
func (r *Reconciler) SetMode(m protocol.Mode) error {
	if !r.isController.Load() {
		return ErrNotController
	}
	r.mu.Lock()
	r.state.Mode = m
	r.mu.Unlock()
	r.debounce.Trigger()
	return nil
}

// SetRotationSpeed changes the rotation speed. Inert unless in control.
func (r *Reconciler) SetRotationSpeed(v float64) error {
	if !r.isController.Load() {
		return ErrNotController
	}
	r.mu.Lock()
	r.state.RotationSpeed = v
	r.mu.Unlock()
	r.debounce.Trigger()
	return nil
}

// flush sends the latest mode and speed once the debounce window closes.
func (r *Reconciler) flush() {
	if !r.isController.Load() {
		return
	}
	r.mu.Lock()
	sessionID := r.sessionID
	delta, err := r.state.sceneDelta()
	r.mu.Unlock()
	if err != nil {
		r.log.Error().Err(err).Msg("encode scene delta")
		return
	}
	if err := r.send.Send(protocol.SceneUpdate, protocol.SceneUpdateRequest{
		SessionID:  sessionID,
		SceneState: delta,
	}); err != nil {
		r.log.Warn().Err(err).Msg("scene update not sent")
	}
}

// SetPhotos replaces the photo list and sends it immediately.
func (r *Reconciler) SetPhotos(photos []string) error {
	if !r.isController.Load() {
		return ErrNotController
	}
	r.mu.Lock()
	r.state.Photos = slices.Clone(photos)
	sessionID := r.sessionID
	r.mu.Unlock()
	return r.send.Send(protocol.PhotosUpdate, protocol.PhotosUpdateRequest{
		SessionID: sessionID,
		Photos:    photos,
	})
}

func (r *Reconciler) joined() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID == "" {
		return "", ErrNotJoined
	}
	return r.sessionID, nil
}

// RequestControl asks the current controller for control.
func (r *Reconciler) RequestControl() error {
	sessionID, err := r.joined()
	if err != nil {
		return err
	}
	if r.isController.Load() {
		return ErrIsController
	}
	return r.send.Send(protocol.ControlRequest, protocol.SessionRef{SessionID: sessionID})
}

// OfferControl offers control to another member.
func (r *Reconciler) OfferControl(targetID string) error {
	sessionID, err := r.joined()
	if err != nil {
		return err
	}
	if !r.isController.Load() {
		return ErrNotController
	}
	r.mu.Lock()
	known := r.indexOf(targetID) >= 0 && targetID != r.selfID
	r.mu.Unlock()
	if !known {
		return ErrUnknownUser
	}
	return r.send.Send(protocol.ControlOffer, protocol.ControlOfferRequest{SessionID: sessionID, TargetID: targetID})
}

// AcceptControl claims control. The server does not require an offer.
func (r *Reconciler) AcceptControl() error {
	sessionID, err := r.joined()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.offer = nil
	r.mu.Unlock()
	return r.send.Send(protocol.ControlAccept, protocol.SessionRef{SessionID: sessionID})
}

// DeclineControl turns down the pending offer.
func (r *Reconciler) DeclineControl() error {
	sessionID, err := r.joined()
	if err != nil {
		return err
	}
	r.mu.Lock()
	offer := r.offer
	r.offer = nil
	r.mu.Unlock()
	if offer == nil {
		return ErrNoOffer
	}
	return r.send.Send(protocol.ControlDecline, protocol.ControlDeclineRequest{SessionID: sessionID, FromID: offer.FromID})
}

// Leave leaves the session and resets local state.
func (r *Reconciler) Leave() error {
	sessionID, err := r.joined()
	if err != nil {
		return err
	}
	err = r.send.Send(protocol.SessionLeave, protocol.SessionRef{SessionID: sessionID})
	r.Reset()
	return err
}

// Reset forgets the session, e.g. after leaving or losing the connection.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.sessionID = ""
	r.selfID = ""
	r.controllerID = ""
	r.users = nil
	r.requests = nil
	r.offer = nil
	changed, isController := r.recompute()
	hooks := r.hooks
	r.mu.Unlock()

	r.debounce.Stop()
	r.afterRoleChange(hooks, changed, isController)
}
