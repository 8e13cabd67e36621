package peer

import (
	"strings"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/rs/zerolog"
)

// RecordIVF returns an OnTrack callback that writes the received VP8 video
// to path. Each new stream overwrites the file.
func RecordIVF(path string, log zerolog.Logger) func(from string, track *pion.TrackRemote) {
	return func(from string, track *pion.TrackRemote) {
		if !strings.EqualFold(track.Codec().MimeType, pion.MimeTypeVP8) {
			drainTrack(track)
			return
		}
		w, err := ivfwriter.New(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("open recording")
			drainTrack(track)
			return
		}
		defer w.Close()

		log.Info().Str("from", from).Str("path", path).Msg("recording stream")
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			if err := w.WriteRTP(pkt); err != nil {
				log.Warn().Err(err).Msg("write recording")
				drainTrack(track)
				return
			}
		}
	}
}
