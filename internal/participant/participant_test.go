package participant

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/gateway"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/reconciler"
	"github.com/ernestchu/christmas-tree/internal/server"
	"github.com/ernestchu/christmas-tree/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Server{
		Websocket: config.Websocket{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			SendBuffer:      64,
			MaxMessageSize:  1 << 20,
			PongWait:        time.Minute,
			WriteWait:       time.Second,
		},
		Metrics: config.Metrics{Disabled: true},
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := gateway.NewHub(session.NewRegistry(), cfg.Websocket, zerolog.Nop())
	go hub.Run(ctx)
	srv := httptest.NewServer(server.NewRouter(hub, cfg, zerolog.Nop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func start(t *testing.T, url, sessionID, name string) *Participant {
	t.Helper()
	cfg, err := config.Load(config.Options{Server: url, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	cfg.STUNServer = ""

	p, err := New(Options{Config: cfg, Log: zerolog.Nop(), PionLevel: zerolog.Disabled})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Connect(ctx))
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, p.Join(sessionID, name))
	require.Eventually(t, func() bool { return p.Reconciler().SelfID() != "" }, waitFor, 10*time.Millisecond)
	return p
}

func TestTwoParticipants(t *testing.T) {
	url := startServer(t)
	alice := start(t, url, "tree", "Alice")
	bob := start(t, url, "tree", "Bob")
	a, b := alice.Reconciler(), bob.Reconciler()

	assert.True(t, a.IsController())
	assert.False(t, b.IsController())
	assert.Equal(t, a.SelfID(), b.Controller())
	require.Eventually(t, func() bool { return len(a.Users()) == 2 }, waitFor, 10*time.Millisecond)

	// bob asked for the stream on join; alice offered once capture was up
	require.Eventually(t, func() bool {
		out := alice.Peers().Outbound()
		return len(out) == 1 && out[0] == b.SelfID()
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		from, ok := bob.Peers().Inbound()
		return ok && from == a.SelfID()
	}, waitFor, 10*time.Millisecond)

	// scene updates flow controller -> viewer
	require.NoError(t, a.SetMode(protocol.ModeCarousel))
	require.NoError(t, a.SetRotationSpeed(1.5))
	require.Eventually(t, func() bool {
		st := b.State()
		return st.Mode == protocol.ModeCarousel && st.RotationSpeed == 1.5
	}, waitFor, 10*time.Millisecond)
	assert.ErrorIs(t, b.SetMode(protocol.ModeChaos), reconciler.ErrNotController)

	// handoff
	require.NoError(t, b.RequestControl())
	require.Eventually(t, func() bool { return len(a.Requests()) == 1 }, waitFor, 10*time.Millisecond)
	require.NoError(t, a.OfferControl(b.SelfID()))
	require.Eventually(t, func() bool { _, ok := b.PendingOffer(); return ok }, waitFor, 10*time.Millisecond)
	require.NoError(t, b.AcceptControl())

	require.Eventually(t, b.IsController, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !a.IsController() }, waitFor, 10*time.Millisecond)
	assert.Equal(t, protocol.ModeCarousel, b.State().Mode, "new controller resumed from scene:sync")
	assert.Empty(t, alice.Peers().Outbound())

	// the old controller now watches the new one
	require.Eventually(t, func() bool {
		out := bob.Peers().Outbound()
		return len(out) == 1 && out[0] == a.SelfID()
	}, waitFor, 10*time.Millisecond)
}

func TestControllerLeaveFailsOver(t *testing.T) {
	url := startServer(t)
	alice := start(t, url, "tree", "Alice")
	bob := start(t, url, "tree", "Bob")

	require.NoError(t, alice.Leave())
	require.Eventually(t, bob.Reconciler().IsController, waitFor, 10*time.Millisecond)
	assert.Len(t, bob.Reconciler().Users(), 1)
}
