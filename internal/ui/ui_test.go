package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/reconciler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControls struct {
	controller bool
	state      reconciler.State
	requests   []reconciler.Request
	offer      *reconciler.Offer
	status     chan string
	calls      []string
	offeredTo  string
}

func newFakeControls() *fakeControls {
	return &fakeControls{status: make(chan string, 4), state: reconciler.State{Mode: protocol.ModeChaos}}
}

func (f *fakeControls) IsController() bool { return f.controller }
func (f *fakeControls) SelfID() string     { return "u1" }
func (f *fakeControls) SessionID() string  { return "snowy-fir" }
func (f *fakeControls) Controller() string {
	if f.controller {
		return "u1"
	}
	return "u2"
}
func (f *fakeControls) Users() []protocol.User {
	return []protocol.User{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}}
}
func (f *fakeControls) UserName(id string) string {
	if id == "u1" {
		return "Alice"
	}
	return "Bob"
}
func (f *fakeControls) State() reconciler.State         { return f.state }
func (f *fakeControls) Requests() []reconciler.Request { return f.requests }
func (f *fakeControls) PendingOffer() (reconciler.Offer, bool) {
	if f.offer == nil {
		return reconciler.Offer{}, false
	}
	return *f.offer, true
}
func (f *fakeControls) Status() <-chan string { return f.status }

func (f *fakeControls) SetMode(m protocol.Mode) error {
	if !f.controller {
		return reconciler.ErrNotController
	}
	f.state.Mode = m
	return nil
}

func (f *fakeControls) SetRotationSpeed(v float64) error {
	if !f.controller {
		return reconciler.ErrNotController
	}
	f.state.RotationSpeed = v
	return nil
}

func (f *fakeControls) RequestControl() error { f.calls = append(f.calls, "request"); return nil }
func (f *fakeControls) AcceptControl() error  { f.calls = append(f.calls, "accept"); return nil }
func (f *fakeControls) DeclineControl() error { f.calls = append(f.calls, "decline"); return nil }
func (f *fakeControls) OfferControl(id string) error {
	f.offeredTo = id
	return nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDashboardControllerKeys(t *testing.T) {
	ctl := newFakeControls()
	ctl.controller = true
	d := NewDashboard(ctl)

	d.Update(key("3"))
	assert.Equal(t, protocol.ModeCarousel, ctl.state.Mode)

	d.Update(key("+"))
	d.Update(key("+"))
	assert.InDelta(t, 0.2, ctl.state.RotationSpeed, 1e-9)
	d.Update(key("-"))
	assert.InDelta(t, 0.1, ctl.state.RotationSpeed, 1e-9)
	d.Update(key("0"))
	assert.Zero(t, ctl.state.RotationSpeed)

	d.Update(key("o"))
	assert.EqualError(t, d.err, "no pending requests")
	ctl.requests = []reconciler.Request{{ID: "u2", Name: "Bob"}, {ID: "u3", Name: "Carol"}}
	d.Update(key("o"))
	assert.NoError(t, d.err)
	assert.Equal(t, "u2", ctl.offeredTo)

	view := d.View()
	assert.Contains(t, view, "in control")
	assert.Contains(t, view, "CAROUSEL")
	assert.Contains(t, view, "Bob, Carol")
}

func TestDashboardViewerKeys(t *testing.T) {
	ctl := newFakeControls()
	ctl.offer = &reconciler.Offer{FromID: "u2", FromName: "Bob"}
	d := NewDashboard(ctl)

	d.Update(key("2"))
	assert.ErrorIs(t, d.err, reconciler.ErrNotController)
	assert.Equal(t, protocol.ModeChaos, ctl.state.Mode)

	d.Update(key("r"))
	d.Update(key("a"))
	d.Update(key("d"))
	assert.Equal(t, []string{"request", "accept", "decline"}, ctl.calls)

	view := d.View()
	assert.Contains(t, view, "watching")
	assert.Contains(t, view, "Bob offers you control")
}

func TestDashboardStatusAndQuit(t *testing.T) {
	ctl := newFakeControls()
	d := NewDashboard(ctl)

	for i := 0; i < 7; i++ {
		_, cmd := d.Update(statusMsg(string(rune('a' + i))))
		require.NotNil(t, cmd)
	}
	assert.Equal(t, []string{"c", "d", "e", "f", "g"}, d.status)

	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	d.err = errors.New("boom")
	assert.Contains(t, d.View(), "boom")
}

func TestRosterView(t *testing.T) {
	view := RosterView([]protocol.User{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}}, "u2", "u1")
	assert.Contains(t, view, "Alice (you)")
	assert.Contains(t, view, IconController)
	assert.Contains(t, RosterView(nil, "", ""), "Nobody here")
}

func TestSessionsView(t *testing.T) {
	now := time.Date(2025, 12, 24, 20, 0, 0, 0, time.UTC)
	controller := "u1"
	view := SessionsView([]protocol.SessionSummary{{
		ID:           "merry-fir",
		Users:        []protocol.User{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}},
		ControllerID: &controller,
		CreatedAt:    now.Add(-90 * time.Second),
	}}, now)
	assert.Contains(t, view, "merry-fir")
	assert.Contains(t, view, "Alice, Bob")
	assert.Contains(t, view, "1m30s")
	assert.Contains(t, SessionsView(nil, now), "No live sessions")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "Chris...", Truncate("Christmas tree", 8))
	assert.Equal(t, "Ch", Truncate("Christmas", 2))
}
