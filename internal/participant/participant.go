package participant

import (
	"context"
	"errors"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/peer"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/reconciler"
	"github.com/ernestchu/christmas-tree/internal/signaling"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// ErrDisconnected is returned by Run when the server went away.
var ErrDisconnected = errors.New("disconnected from server")

type Options struct {
	Config *config.Client
	Log    zerolog.Logger
	// PionLevel caps pion's own log output.
	PionLevel zerolog.Level

	// Capture feeds the stream while this participant is in control.
	Capture peer.Capture
	// OnTrack receives the controller's stream while watching.
	OnTrack func(from string, track *pion.TrackRemote)
}

// Participant is one client of a session: the signaling connection, the
// role reconciler and the peer connections, wired together.
type Participant struct {
	client  *signaling.Client
	handler *signaling.Handler
	rec     *reconciler.Reconciler
	peers   *peer.Manager
	log     zerolog.Logger
}

func New(opts Options) (*Participant, error) {
	log := opts.Log.With().Str("mod", "participant").Logger()
	client := signaling.NewClient(opts.Config.WebSocketURL, opts.Log)
	rec := reconciler.New(client, opts.Config.Debounce, opts.Log)

	api, err := peer.NewAPI(opts.Log, opts.PionLevel)
	if err != nil {
		return nil, err
	}
	peers, err := peer.NewManager(peer.Options{
		API:      api,
		Config:   peer.Configuration(opts.Config),
		Capture:  opts.Capture,
		Signaler: client,
		Log:      opts.Log,
		OnTrack:  opts.OnTrack,
		OnStatus: func(s string) { rec.Notify("%s", s) },
	})
	if err != nil {
		return nil, err
	}

	p := &Participant{
		client:  client,
		handler: signaling.NewHandler(),
		rec:     rec,
		peers:   peers,
		log:     log,
	}
	rec.Bind(p.handler)
	peers.Bind(p.handler)
	p.handler.Otherwise(func(msg *protocol.Message) {
		log.Debug().Str("type", msg.Type).Msg("unhandled message")
	})
	rec.SetHooks(reconciler.Hooks{
		RoleChanged:       p.roleChanged,
		ControllerChanged: p.controllerChanged,
		UserLeft:          peers.PeerLeft,
	})
	return p, nil
}

// Reconciler exposes the local session view and the control actions.
func (p *Participant) Reconciler() *reconciler.Reconciler { return p.rec }

// Peers exposes the peer connection manager.
func (p *Participant) Peers() *peer.Manager { return p.peers }

// Connect dials the server.
func (p *Participant) Connect(ctx context.Context) error {
	return p.client.Connect(ctx)
}

// Join asks to enter a session; the snapshot arrives asynchronously.
func (p *Participant) Join(sessionID, name string) error {
	return p.client.Send(protocol.SessionJoin, protocol.JoinRequest{SessionID: sessionID, Name: name})
}

// Run delivers server events until ctx is done or the connection drops,
// then releases everything.
func (p *Participant) Run(ctx context.Context) error {
	defer p.Close()
	p.handler.Run(ctx, p.client.Incoming())
	if ctx.Err() != nil {
		return nil
	}
	return ErrDisconnected
}

// Leave leaves the session and closes every peer connection.
func (p *Participant) Leave() error {
	err := p.rec.Leave()
	p.peers.Close()
	return err
}

func (p *Participant) Close() {
	p.peers.Close()
	p.rec.Reset()
	p.client.Close()
}

func (p *Participant) roleChanged(isController bool) {
	if isController {
		p.peers.BecomeController()
		return
	}
	p.peers.BecomeViewer()
}

// controllerChanged asks the (new) controller for its stream while watching.
func (p *Participant) controllerChanged(controllerID string) {
	if controllerID == "" || p.rec.IsController() {
		return
	}
	p.peers.BecomeViewer()
	sessionID := p.rec.SessionID()
	if sessionID == "" {
		return
	}
	if err := p.client.Send(protocol.WebrtcViewerJoin, protocol.SessionRef{SessionID: sessionID}); err != nil {
		p.log.Debug().Err(err).Msg("viewer-join not sent")
	}
}
