package protocol

// Session membership.
const (
	SessionJoin       = "session:join"
	SessionJoined     = "session:joined"
	SessionUserJoined = "session:user-joined"
	SessionUserLeft   = "session:user-left"
	SessionLeave      = "session:leave"
)

// Shared scene state.
const (
	SceneUpdate  = "scene:update"
	SceneState   = "scene:state"
	SceneSync    = "scene:sync"
	PhotosUpdate = "photos:update"
)

// Control authority.
const (
	ControlRequest   = "control:request"
	ControlRequested = "control:requested"
	ControlOffer     = "control:offer"
	ControlAccept    = "control:accept"
	ControlChanged   = "control:changed"
	ControlDecline   = "control:decline"
	ControlDeclined  = "control:declined"
)

// WebRTC negotiation, relayed verbatim.
const (
	WebrtcViewerJoin = "webrtc:viewer-join"
	WebrtcOffer      = "webrtc:offer"
	WebrtcAnswer     = "webrtc:answer"
	WebrtcIce        = "webrtc:ice"
)

