package peer

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog"
)

// Capture produces the local tracks the controller streams to viewers.
type Capture interface {
	// Start acquires the tracks. Calling Start on a started capture returns
	// the same tracks. The release func gives up this acquisition only; the
	// tracks are fed until every acquisition has been released.
	Start(ctx context.Context) (tracks []pion.TrackLocal, release func(), err error)
}

// FrameSource yields encoded VP8 frames of the rendered scene.
type FrameSource interface {
	// NextFrame blocks until a frame is ready. The duration is how long the
	// frame is shown.
	NextFrame(ctx context.Context) ([]byte, time.Duration, error)
}

// SceneCapture streams frames from a FrameSource as one VP8 video track.
type SceneCapture struct {
	source FrameSource
	log    zerolog.Logger

	mu     sync.Mutex
	refs   int
	track  *pion.TrackLocalStaticSample
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSceneCapture(source FrameSource, log zerolog.Logger) *SceneCapture {
	return &SceneCapture{source: source, log: log.With().Str("mod", "capture").Logger()}
}

func (c *SceneCapture) Start(ctx context.Context) ([]pion.TrackLocal, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.track == nil {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		track, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "scene", "christmas-tree")
		if err != nil {
			return nil, nil, newError("create track", "", err)
		}

		pumpCtx, cancel := context.WithCancel(context.Background())
		c.track, c.cancel, c.done = track, cancel, make(chan struct{})
		go c.pump(pumpCtx, track, c.done)
		c.log.Debug().Msg("capture started")
	}
	c.refs++

	var once sync.Once
	return []pion.TrackLocal{c.track}, func() { once.Do(c.release) }, nil
}

func (c *SceneCapture) pump(ctx context.Context, track *pion.TrackLocalStaticSample, done chan struct{}) {
	defer close(done)
	for {
		frame, d, err := c.source.NextFrame(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.log.Warn().Err(err).Msg("frame source stopped")
			}
			return
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: d}); err != nil {
			c.log.Debug().Err(err).Msg("write sample")
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *SceneCapture) release() {
	c.mu.Lock()
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.track, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.log.Debug().Msg("capture stopped")
}

// Running reports whether frames are being pumped into a track.
func (c *SceneCapture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track != nil
}

// IdleSource never produces a frame. The track exists, so viewers can
// still negotiate.
type IdleSource struct{}

func (IdleSource) NextFrame(ctx context.Context) ([]byte, time.Duration, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

// IVFSource replays a VP8 IVF file in a loop.
type IVFSource struct {
	f     *os.File
	r     *ivfreader.IVFReader
	frame time.Duration
}

func OpenIVF(path string) (*IVFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &IVFSource{f: f}
	if err := s.rewind(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *IVFSource) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r, h, err := ivfreader.NewWith(s.f)
	if err != nil {
		return err
	}
	s.r = r
	s.frame = time.Second / 30
	if h.TimebaseDenominator > 0 && h.TimebaseNumerator > 0 {
		s.frame = time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator))
	}
	return nil
}

func (s *IVFSource) NextFrame(ctx context.Context) ([]byte, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	frame, _, err := s.r.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		if err := s.rewind(); err != nil {
			return nil, 0, err
		}
		frame, _, err = s.r.ParseNextFrame()
	}
	if err != nil {
		return nil, 0, err
	}
	return frame, s.frame, nil
}

func (s *IVFSource) Close() error { return s.f.Close() }
