package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mode is the visualization state of the shared scene.
type Mode string

const (
	ModeChaos    Mode = "CHAOS"
	ModeFormed   Mode = "FORMED"
	ModeCarousel Mode = "CAROUSEL"
	ModePhoto    Mode = "PHOTO"
)

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if err := validate.Var(s, "oneof=CHAOS FORMED CAROUSEL PHOTO"); err != nil {
		return "", fmt.Errorf("unknown scene mode %q", s)
	}
	return m, nil
}

// Well-known blob fields.
const (
	FieldMode          = "sceneState"
	FieldRotationSpeed = "rotationSpeed"
	FieldPhotos        = "photos"
)

// SceneBlob is the last-known-good scene snapshot. The server treats it as
// opaque: a shallow map of field name to raw JSON value. Updates merge
// field-wise and never clear a field they do not mention.
type SceneBlob map[string]json.RawMessage

// Merge copies every field of delta over b, allocating b if needed.
func (b SceneBlob) Merge(delta SceneBlob) SceneBlob {
	if b == nil {
		b = make(SceneBlob, len(delta))
	}
	for k, v := range delta {
		b[k] = v
	}
	return b
}

// Clone returns a shallow copy. nil stays nil.
func (b SceneBlob) Clone() SceneBlob {
	if b == nil {
		return nil
	}
	c := make(SceneBlob, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Validate checks the well-known fields. Unknown fields pass through.
func (b SceneBlob) Validate() error {
	for k, v := range b {
		if len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("scene field %q is empty", k)
		}
		switch k {
		case FieldMode:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("scene field %q: %w", k, err)
			}
			if _, err := ParseMode(s); err != nil {
				return err
			}
		case FieldRotationSpeed:
			var f float64
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("scene field %q: %w", k, err)
			}
		case FieldPhotos:
			var p []string
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("scene field %q: %w", k, err)
			}
		}
	}
	return nil
}

// Set encodes v under key.
func (b SceneBlob) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b[key] = raw
	return nil
}

func (b SceneBlob) Mode() (Mode, bool) {
	var s string
	if !b.get(FieldMode, &s) {
		return "", false
	}
	return Mode(s), true
}

func (b SceneBlob) RotationSpeed() (float64, bool) {
	var f float64
	return f, b.get(FieldRotationSpeed, &f)
}

func (b SceneBlob) Photos() ([]string, bool) {
	var p []string
	return p, b.get(FieldPhotos, &p)
}

func (b SceneBlob) get(key string, v any) bool {
	raw, ok := b[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
