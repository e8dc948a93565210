// Package rtspprobe issues an RTSP DESCRIBE and reports the announced tracks.
package rtspprobe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"
)

// Track is one media section of the session description.
type Track struct {
	Kind        string `json:"kind" example:"video" doc:"Media kind"`
	Codec       string `json:"codec" example:"H264" doc:"Codec name"`
	ClockRate   uint32 `json:"clock_rate" example:"90000" doc:"RTP clock rate"`
	PayloadType uint8  `json:"payload_type" example:"96" doc:"RTP payload type"`
	Fmtp        string `json:"fmtp,omitempty" doc:"Format parameters"`
}

// Result is the outcome of a DESCRIBE.
type Result struct {
	URL    string  `json:"url" doc:"Probed URL"`
	Tracks []Track `json:"tracks" doc:"Announced tracks"`
}

// HasVideo reports whether any track is H.264 video.
func (r *Result) HasVideo() bool {
	for _, t := range r.Tracks {
		if t.Kind == core.KindVideo && t.Codec == core.CodecH264 {
			return true
		}
	}
	return false
}

// Describe connects to url and returns its tracks. It returns when ctx is
// done; the connection is then closed once the pending exchange ends.
func Describe(ctx context.Context, url string) (*Result, error) {
	conn := rtsp.NewClient(url)

	type outcome struct {
		medias []*core.Media
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		if err := conn.Dial(); err != nil {
			done <- outcome{err: fmt.Errorf("dial %s: %w", url, err)}
			return
		}
		if err := conn.Describe(); err != nil {
			done <- outcome{err: fmt.Errorf("describe %s: %w", url, err)}
			return
		}
		done <- outcome{medias: conn.Medias}
	}()

	select {
	case <-ctx.Done():
		go func() {
			<-done
			_ = conn.Close()
		}()
		return nil, ctx.Err()
	case o := <-done:
		_ = conn.Close()
		if o.err != nil {
			return nil, o.err
		}
		return &Result{URL: url, Tracks: tracksFrom(o.medias)}, nil
	}
}

// ErrNoVideo is returned by Check when the stream announces no H.264 video.
var ErrNoVideo = errors.New("no H.264 video track")

// CheckTimeout bounds a Check.
const CheckTimeout = 3 * time.Second

// Check describes url and fails unless it carries H.264 video.
func Check(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()
	result, err := Describe(ctx, url)
	if err != nil {
		return err
	}
	if !result.HasVideo() {
		return fmt.Errorf("%w at %s", ErrNoVideo, url)
	}
	return nil
}

func tracksFrom(medias []*core.Media) []Track {
	var tracks []Track
	for _, m := range medias {
		for _, c := range m.Codecs {
			tracks = append(tracks, Track{
				Kind:        m.Kind,
				Codec:       c.Name,
				ClockRate:   c.ClockRate,
				PayloadType: c.PayloadType,
				Fmtp:        c.FmtpLine,
			})
		}
	}
	return tracks
}
