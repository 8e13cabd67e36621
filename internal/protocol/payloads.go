package protocol

import "encoding/json"

// User is a session member as seen on the wire.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JoinRequest is sent by a client to enter (or lazily create) a session.
type JoinRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Name      string `json:"name" validate:"required,max=64"`
}

// SessionRef names a session and nothing else. Used by leave, control
// request/accept and viewer-join.
type SessionRef struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

// Joined is the full session snapshot returned to a joiner.
type Joined struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	Users        []User    `json:"users"`
	ControllerID *string   `json:"controllerId"`
	SceneState   SceneBlob `json:"sceneState"`
}

type UserJoined struct {
	User User `json:"user"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

// SceneUpdateRequest carries a partial scene blob from the controller.
type SceneUpdateRequest struct {
	SessionID  string    `json:"sessionId" validate:"required,max=128"`
	SceneState SceneBlob `json:"sceneState" validate:"required"`
}

func (r SceneUpdateRequest) Validate() error { return r.SceneState.Validate() }

// ScenePayload is the body of scene:state (a delta) and scene:sync (the
// full blob).
type ScenePayload struct {
	SceneState SceneBlob `json:"sceneState"`
}

type PhotosUpdateRequest struct {
	SessionID string   `json:"sessionId" validate:"required,max=128"`
	Photos    []string `json:"photos" validate:"required,dive,required"`
}

type PhotosPayload struct {
	Photos []string `json:"photos"`
}

type ControlRequestedNotice struct {
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
}

type ControlOfferRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	TargetID  string `json:"targetId" validate:"required"`
}

type ControlOfferNotice struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
}

type ControlChangedNotice struct {
	ControllerID *string `json:"controllerId"`
}

type ControlDeclineRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	FromID    string `json:"fromId" validate:"required"`
}

type ControlDeclinedNotice struct {
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`
}

type ViewerJoin struct {
	ViewerID string `json:"viewerId"`
}

// Route is the only part of a relayed payload the server reads.
type Route struct {
	To string `json:"to" validate:"required"`
}

// SDPSignal carries an offer or answer description.
type SDPSignal struct {
	To   string `json:"to,omitempty"`
	Type string `json:"type" validate:"required,oneof=offer answer"`
	SDP  string `json:"sdp" validate:"required"`
}

// ICESignal carries one trickled candidate in its browser JSON form.
type ICESignal struct {
	To        string          `json:"to,omitempty"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

// NullableID maps the empty id to a JSON null.
func NullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// ID dereferences a nullable id, "" meaning null.
func ID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}
