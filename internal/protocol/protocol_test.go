package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"type":"session:join","payload":{"sessionId":"s","name":"Alice"}}`))
	require.NoError(t, err)
	assert.Equal(t, SessionJoin, m.Type)

	for _, raw := range []string{`not json`, `{}`, `{"payload":{}}`, `[1,2]`} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidMessage, raw)
	}
}

func TestDecodeValidates(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"valid", `{"sessionId":"s","name":"Alice"}`, true},
		{"missing name", `{"sessionId":"s"}`, false},
		{"empty session", `{"sessionId":"","name":"Alice"}`, false},
		{"wrong type", `{"sessionId":7,"name":"Alice"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Type: SessionJoin, Payload: json.RawMessage(tt.payload)}
			var req JoinRequest
			err := m.Decode(&req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			}
		})
	}

	var ref SessionRef
	assert.ErrorIs(t, (&Message{Type: SessionLeave}).Decode(&ref), ErrInvalidMessage)
}

func TestDecodeSceneUpdate(t *testing.T) {
	tests := []struct {
		name  string
		scene string
		ok    bool
	}{
		{"mode and speed", `{"sceneState":"FORMED","rotationSpeed":0.4}`, true},
		{"unknown fields pass", `{"glow":true}`, true},
		{"bad mode", `{"sceneState":"SPINNING"}`, false},
		{"speed as string", `{"rotationSpeed":"fast"}`, false},
		{"null field", `{"sceneState":null}`, false},
		{"photos not a list", `{"photos":"a.png"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Type: SceneUpdate, Payload: json.RawMessage(`{"sessionId":"s","sceneState":` + tt.scene + `}`)}
			var req SceneUpdateRequest
			err := m.Decode(&req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			}
		})
	}
}

func TestForwardKeepsPayloadBytes(t *testing.T) {
	payload := json.RawMessage(`{"to":"b",  "type":"offer","sdp":"v=0\r\na=<x>&y\r\n","extra":[1, 2]}`)
	m := &Message{Type: WebrtcOffer, Payload: payload}

	fwd := m.Forward("a")
	assert.Equal(t, "a", fwd.From)
	assert.Equal(t, WebrtcOffer, fwd.Type)
	assert.Equal(t, []byte(payload), []byte(fwd.Payload))
	assert.Empty(t, m.From, "original untouched")

	frame, err := fwd.Frame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"webrtc:offer","from":"a","payload":`+string(payload)+`}`, string(frame))

	back, err := Parse(frame)
	require.NoError(t, err)
	assert.Equal(t, fwd, back)
}

func TestFrame(t *testing.T) {
	frame, err := (&Message{Type: SessionLeave}).Frame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"session:leave"}`, string(frame))

	frame, err = (&Message{Type: `a"<b>`, From: "x&y", Payload: json.RawMessage(`null`)}).Frame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"a\"<b>","from":"x&y","payload":null}`, string(frame))

	_, err = (&Message{Type: WebrtcIce, Payload: json.RawMessage(`{"to":`)}).Frame()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSessionSummaryKeys(t *testing.T) {
	out, err := json.Marshal(SessionSummary{ID: "s", Users: []User{{ID: "u1", Name: "Alice"}}})
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &keys))
	assert.Contains(t, keys, "users")
	assert.NotContains(t, keys, "members")
}

func TestSceneBlobMerge(t *testing.T) {
	var b SceneBlob
	b = b.Merge(SceneBlob{FieldMode: json.RawMessage(`"CHAOS"`), FieldRotationSpeed: json.RawMessage(`0.5`)})
	b = b.Merge(SceneBlob{FieldMode: json.RawMessage(`"PHOTO"`)})

	mode, ok := b.Mode()
	require.True(t, ok)
	assert.Equal(t, ModePhoto, mode)
	speed, ok := b.RotationSpeed()
	require.True(t, ok)
	assert.Equal(t, 0.5, speed)
	_, ok = b.Photos()
	assert.False(t, ok)

	c := b.Clone()
	require.NoError(t, c.Set(FieldPhotos, []string{"data:image/png;base64,AA=="}))
	_, ok = b.Photos()
	assert.False(t, ok, "clone is independent")
	assert.Nil(t, SceneBlob(nil).Clone())
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"CHAOS", "FORMED", "CAROUSEL", "PHOTO"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("chaos")
	assert.Error(t, err)
}

func TestNullableID(t *testing.T) {
	assert.Nil(t, NullableID(""))
	assert.Equal(t, "x", ID(NullableID("x")))
	assert.Equal(t, "", ID(nil))

	out, err := json.Marshal(ControlChangedNotice{ControllerID: NullableID("")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"controllerId":null}`, string(out))
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage(ControlChanged, ControlChangedNotice{ControllerID: NullableID("u1")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"controllerId":"u1"}`, string(m.Payload))

	m, err = NewMessage(SessionLeave, nil)
	require.NoError(t, err)
	assert.Empty(t, m.Payload)

	_, err = NewMessage(SceneUpdate, func() {})
	assert.Error(t, err)
}
