package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ernestchu/christmas-tree/internal/protocol"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Signaler sends negotiation messages through the relay.
type Signaler interface {
	Send(t string, payload any) error
}

type role int

const (
	roleNone role = iota
	roleController
	roleViewer
)

type Options struct {
	API      *pion.API
	Config   pion.Configuration
	Capture  Capture
	Signaler Signaler
	Log      zerolog.Logger

	// OnTrack receives the controller's stream on a viewer. Nil drains it.
	OnTrack func(from string, track *pion.TrackRemote)
	// OnStatus receives UX-facing notices such as capture failures.
	OnStatus func(string)
}

// Manager owns every peer connection of one participant: one outbound
// connection per viewer while in control, or a single inbound connection
// from the controller while watching.
type Manager struct {
	api      *pion.API
	conf     pion.Configuration
	capture  Capture
	signal   Signaler
	onTrack  func(string, *pion.TrackRemote)
	onStatus func(string)
	log      zerolog.Logger

	mu   sync.Mutex
	role role
	// gen changes on every role change; a capture start that finishes under
	// an older gen is released without touching the current one
	gen           uint64
	cancelCapture context.CancelFunc
	release       func()
	tracks        []pion.TrackLocal
	outbound      map[string]*link
	pending       []string
	inbound       *link
	closed        bool
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Signaler == nil {
		return nil, fmt.Errorf("peer: signaler is required")
	}
	api := opts.API
	if api == nil {
		var err error
		if api, err = NewAPI(opts.Log, zerolog.WarnLevel); err != nil {
			return nil, err
		}
	}
	capture := opts.Capture
	if capture == nil {
		capture = NewSceneCapture(IdleSource{}, opts.Log)
	}
	return &Manager{
		api:      api,
		conf:     opts.Config,
		capture:  capture,
		signal:   opts.Signaler,
		onTrack:  opts.OnTrack,
		onStatus: opts.OnStatus,
		log:      opts.Log.With().Str("mod", "peer").Logger(),
		outbound: make(map[string]*link),
	}, nil
}

func (m *Manager) status(format string, args ...any) {
	if m.onStatus != nil {
		m.onStatus(fmt.Sprintf(format, args...))
	}
}

// BecomeController drops the inbound stream and starts local capture in the
// background. Viewers that ask before capture is up are queued.
func (m *Manager) BecomeController() {
	m.mu.Lock()
	if m.closed || m.role == roleController {
		m.mu.Unlock()
		return
	}
	m.role = roleController
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCapture = cancel
	in := m.inbound
	m.inbound = nil
	m.mu.Unlock()

	closeAll(in)
	go m.startCapture(ctx, gen)
}

func (m *Manager) startCapture(ctx context.Context, gen uint64) {
	tracks, release, err := m.capture.Start(ctx)

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		if err == nil {
			release()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.log.Error().Err(err).Msg("capture failed")
		m.status("could not start streaming: %v", err)
		return
	}
	m.tracks = tracks
	m.release = release
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	m.log.Debug().Int("queued", len(queued)).Msg("capture ready")
	for _, id := range queued {
		if err := m.offer(id); err != nil {
			m.log.Warn().Err(err).Msg("offer to queued viewer")
		}
	}
}

// BecomeViewer closes every outbound connection, clears the queue and
// releases capture.
func (m *Manager) BecomeViewer() {
	m.mu.Lock()
	if m.closed || m.role == roleViewer {
		m.mu.Unlock()
		return
	}
	m.role = roleViewer
	m.gen++
	out := m.takeOutbound()
	m.pending = nil
	m.tracks = nil
	cancel, release := m.cancelCapture, m.release
	m.cancelCapture, m.release = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	closeAll(out...)
	if release != nil {
		release()
	}
}

// HandleViewerJoin offers the stream to viewerID, or queues the viewer
// until capture is up.
func (m *Manager) HandleViewerJoin(viewerID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role != roleController {
		m.mu.Unlock()
		return newError("viewer join", viewerID, ErrNotController)
	}
	if m.tracks == nil {
		if !slices.Contains(m.pending, viewerID) {
			m.pending = append(m.pending, viewerID)
		}
		m.mu.Unlock()
		m.log.Debug().Str("viewer", viewerID).Msg("viewer queued until capture starts")
		return nil
	}
	m.mu.Unlock()
	return m.offer(viewerID)
}

func (m *Manager) offer(viewerID string) error {
	m.mu.Lock()
	tracks := m.tracks
	m.mu.Unlock()

	pc, err := m.api.NewPeerConnection(m.conf)
	if err != nil {
		return newError("create peer connection", viewerID, err)
	}
	l := newLink(viewerID, pc)
	for _, t := range tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			pc.Close()
			return newError("add track", viewerID, err)
		}
		go drainRTCP(sender)
	}
	m.watch(l)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return newError("create offer", viewerID, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return newError("set local description", viewerID, err)
	}

	m.mu.Lock()
	if m.closed || m.role != roleController {
		m.mu.Unlock()
		pc.Close()
		return newError("offer", viewerID, ErrNotController)
	}
	prev := m.outbound[viewerID]
	m.outbound[viewerID] = l
	m.mu.Unlock()
	closeAll(prev)

	if err := m.signal.Send(protocol.WebrtcOffer, protocol.SDPSignal{
		To:   viewerID,
		Type: pion.SDPTypeOffer.String(),
		SDP:  pc.LocalDescription().SDP,
	}); err != nil {
		return newError("send offer", viewerID, err)
	}
	m.flushLocal(l)
	m.log.Debug().Str("viewer", viewerID).Msg("offer sent")
	return nil
}

// HandleOffer replaces the inbound connection with one answering sig.
func (m *Manager) HandleOffer(from string, sig protocol.SDPSignal) error {
	if sig.Type != pion.SDPTypeOffer.String() {
		return newError("handle offer", from, ErrUnexpectedSignal)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role == roleController {
		m.mu.Unlock()
		return newError("handle offer", from, ErrUnexpectedSignal)
	}
	m.mu.Unlock()

	pc, err := m.api.NewPeerConnection(m.conf)
	if err != nil {
		return newError("create peer connection", from, err)
	}
	l := newLink(from, pc)
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		m.log.Info().Str("from", from).Str("codec", track.Codec().MimeType).Msg("receiving stream")
		if m.onTrack != nil {
			m.onTrack(from, track)
			return
		}
		drainTrack(track)
	})
	m.watch(l)

	m.mu.Lock()
	if m.closed || m.role == roleController {
		m.mu.Unlock()
		pc.Close()
		return newError("handle offer", from, ErrUnexpectedSignal)
	}
	prev := m.inbound
	m.inbound = l
	m.mu.Unlock()
	closeAll(prev)

	if err := l.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sig.SDP}); err != nil {
		return newError("set remote description", from, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return newError("create answer", from, err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return newError("set local description", from, err)
	}
	if err := m.signal.Send(protocol.WebrtcAnswer, protocol.SDPSignal{
		To:   from,
		Type: pion.SDPTypeAnswer.String(),
		SDP:  pc.LocalDescription().SDP,
	}); err != nil {
		return newError("send answer", from, err)
	}
	m.flushLocal(l)
	return nil
}

// HandleAnswer completes the outbound negotiation with viewer from.
func (m *Manager) HandleAnswer(from string, sig protocol.SDPSignal) error {
	if sig.Type != pion.SDPTypeAnswer.String() {
		return newError("handle answer", from, ErrUnexpectedSignal)
	}
	m.mu.Lock()
	l := m.outbound[from]
	m.mu.Unlock()
	if l == nil {
		return newError("handle answer", from, ErrUnknownPeer)
	}
	if err := l.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
		return newError("set remote description", from, err)
	}
	return nil
}

// HandleICE adds a remote candidate to the connection shared with from.
func (m *Manager) HandleICE(from string, sig protocol.ICESignal) error {
	var c pion.ICECandidateInit
	if err := json.Unmarshal(sig.Candidate, &c); err != nil {
		return newError("parse ICE candidate", from, err)
	}

	m.mu.Lock()
	l := m.outbound[from]
	if l == nil && m.inbound != nil && m.inbound.peerID == from {
		l = m.inbound
	}
	m.mu.Unlock()
	if l == nil {
		return newError("add ICE candidate", from, ErrUnknownPeer)
	}
	if err := l.addRemote(c); err != nil {
		return newError("add ICE candidate", from, err)
	}
	return nil
}

// PeerLeft drops everything negotiated with a member who left the session.
func (m *Manager) PeerLeft(id string) {
	m.mu.Lock()
	out := m.outbound[id]
	delete(m.outbound, id)
	m.pending = slices.DeleteFunc(m.pending, func(p string) bool { return p == id })
	var in *link
	if m.inbound != nil && m.inbound.peerID == id {
		in = m.inbound
		m.inbound = nil
	}
	m.mu.Unlock()

	closeAll(out, in)
}

// Close tears down every connection and releases capture.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++
	links := append(m.takeOutbound(), m.inbound)
	m.inbound = nil
	m.pending = nil
	m.tracks = nil
	cancel, release := m.cancelCapture, m.release
	m.cancelCapture, m.release = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	closeAll(links...)
	if release != nil {
		release()
	}
	return nil
}

// Outbound lists viewers with an outbound connection, sorted.
func (m *Manager) Outbound() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.outbound))
	for id := range m.outbound {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pending lists queued viewers in arrival order.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.pending)
}

// Inbound returns the controller we are receiving from, if any.
func (m *Manager) Inbound() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inbound == nil {
		return "", false
	}
	return m.inbound.peerID, true
}

// Streaming reports whether capture is up.
func (m *Manager) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracks != nil
}

// takeOutbound empties the outbound table; callers hold mu.
func (m *Manager) takeOutbound() []*link {
	out := make([]*link, 0, len(m.outbound))
	for _, l := range m.outbound {
		out = append(out, l)
	}
	m.outbound = make(map[string]*link)
	return out
}

func (m *Manager) watch(l *link) {
	l.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if l.queueLocal(init) {
			m.sendCandidate(l.peerID, init)
		}
	})
	l.pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		m.log.Debug().Str("peer", l.peerID).Str("state", s.String()).Msg("connection state")
		switch s {
		case pion.PeerConnectionStateFailed:
			m.forget(l)
			l.close()
		case pion.PeerConnectionStateClosed:
			m.forget(l)
		}
	})
}

func (m *Manager) forget(l *link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outbound[l.peerID] == l {
		delete(m.outbound, l.peerID)
	}
	if m.inbound == l {
		m.inbound = nil
	}
}

func (m *Manager) flushLocal(l *link) {
	for _, c := range l.markSent() {
		m.sendCandidate(l.peerID, c)
	}
}

func (m *Manager) sendCandidate(to string, c pion.ICECandidateInit) {
	raw, err := json.Marshal(c)
	if err != nil {
		m.log.Error().Err(err).Msg("encode candidate")
		return
	}
	if err := m.signal.Send(protocol.WebrtcIce, protocol.ICESignal{To: to, Candidate: raw}); err != nil {
		m.log.Debug().Err(err).Str("peer", to).Msg("send candidate")
	}
}

func closeAll(links ...*link) {
	for _, l := range links {
		if l != nil {
			l.close()
		}
	}
}

func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainTrack(track *pion.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
