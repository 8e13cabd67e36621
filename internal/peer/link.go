package peer

import (
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// link is one peer connection plus the candidates that arrived too early.
// Local candidates are held until our description has been sent, remote
// ones until the remote description is set.
type link struct {
	peerID string
	pc     *pion.PeerConnection

	mu        sync.Mutex
	sent      bool
	local     []pion.ICECandidateInit
	remoteSet bool
	remote    []pion.ICECandidateInit
}

func newLink(peerID string, pc *pion.PeerConnection) *link {
	return &link{peerID: peerID, pc: pc}
}

// queueLocal returns true when c may be sent right away.
func (l *link) queueLocal(c pion.ICECandidateInit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sent {
		return true
	}
	l.local = append(l.local, c)
	return false
}

// markSent returns the local candidates held back so far.
func (l *link) markSent() []pion.ICECandidateInit {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = true
	held := l.local
	l.local = nil
	return held
}

// addRemote applies c now or once the remote description is known.
func (l *link) addRemote(c pion.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.remote = append(l.remote, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(c)
}

func (l *link) setRemote(desc pion.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	l.mu.Lock()
	l.remoteSet = true
	held := l.remote
	l.remote = nil
	l.mu.Unlock()

	for _, c := range held {
		if err := l.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *link) close() error { return l.pc.Close() }
