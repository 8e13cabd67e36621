package reconciler

import (
	"slices"

	"github.com/ernestchu/christmas-tree/internal/protocol"
)

// DefaultMode is the scene mode before any snapshot arrives.
const DefaultMode = protocol.ModeChaos

// State is the local render state handed to the renderer.
type State struct {
	Mode          protocol.Mode
	RotationSpeed float64
	Photos        []string
}

// apply merges the known fields of blob into s. Fields that are absent or
// that fail to decode leave s untouched.
func (s *State) apply(blob protocol.SceneBlob) {
	if m, ok := blob.Mode(); ok {
		s.Mode = m
	}
	if v, ok := blob.RotationSpeed(); ok {
		s.RotationSpeed = v
	}
	if p, ok := blob.Photos(); ok {
		s.Photos = p
	}
}

// sceneDelta is what a debounced scene:update carries: mode and rotation
// speed, never photos.
func (s State) sceneDelta() (protocol.SceneBlob, error) {
	blob := protocol.SceneBlob{}
	if err := blob.Set(protocol.FieldMode, s.Mode); err != nil {
		return nil, err
	}
	if err := blob.Set(protocol.FieldRotationSpeed, s.RotationSpeed); err != nil {
		return nil, err
	}
	return blob, nil
}

func (s State) clone() State {
	s.Photos = slices.Clone(s.Photos)
	return s
}

// Request is a pending control request shown to the controller.
type Request struct {
	ID   string
	Name string
}

// Offer is a control offer extended to this participant.
type Offer struct {
	FromID   string
	FromName string
}
