// Package capture turns a microphone gesture into one Ogg/Opus blob.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

const (
	SampleRate    = 48000
	Channels      = 1
	FrameDuration = 20 * time.Millisecond
	MIMEType      = "audio/ogg"

	samplesPerFrame = SampleRate / 50
	opusPayloadType = 111
	stopTimeout     = 2 * time.Second
)

var ErrNotRecording = errors.New("no capture in progress")

// Stream is an open microphone producing Opus frames.
type Stream interface {
	// Frames is closed by the stream once Stop has flushed.
	Frames() <-chan []byte
	Stop() error
	// Close releases the device.
	Close() error
}

// Microphone opens exclusive streams. Open returns an error wrapping
// domain.ErrPermissionDenied when the user or platform refuses.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

type Recording struct {
	Data     []byte
	MIME     string
	Frames   int
	Duration time.Duration
}

// Empty recordings must not be sent.
func (r Recording) Empty() bool { return len(r.Data) == 0 }

type active struct {
	stream Stream
	mu     sync.Mutex
	frames [][]byte
	done   chan struct{}
}

func (a *active) collect() {
	defer close(a.done)
	for f := range a.stream.Frames() {
		if len(f) == 0 {
			continue
		}
		a.mu.Lock()
		a.frames = append(a.frames, f)
		a.mu.Unlock()
	}
}

func (a *active) take() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.frames
	a.frames = nil
	return out
}

// Pipeline allows one capture at a time.
type Pipeline struct {
	mic    Microphone
	log    zerolog.Logger
	encode func(frames [][]byte) ([]byte, error)

	mu  sync.Mutex
	cur *active
}

func NewPipeline(mic Microphone, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		mic:    mic,
		log:    logger.With().Str("module", "capture").Logger(),
		encode: encodeOgg,
	}
}

// Active reports whether a capture is running.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

func (p *Pipeline) Begin(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return domain.ErrAlreadyRecording
	}
	stream, err := p.mic.Open(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			p.log.Warn().Err(err).Msg("microphone refused")
			return err
		}
		return fmt.Errorf("open microphone: %w", err)
	}
	a := &active{stream: stream, done: make(chan struct{})}
	go a.collect()
	p.cur = a
	p.log.Debug().Msg("capture started")
	return nil
}

// End stops the capture and returns the encoded container. The device is
// released on every path. No frames yields an empty Recording and no error.
func (p *Pipeline) End() (Recording, error) {
	p.mu.Lock()
	a := p.cur
	p.cur = nil
	p.mu.Unlock()
	if a == nil {
		return Recording{}, ErrNotRecording
	}
	defer func() {
		if cerr := a.stream.Close(); cerr != nil {
			p.log.Warn().Err(cerr).Msg("release microphone")
		}
	}()

	if err := a.stream.Stop(); err != nil {
		p.log.Warn().Err(err).Msg("stop stream")
	}
	select {
	case <-a.done:
	case <-time.After(stopTimeout):
		p.log.Warn().Msg("stream did not flush, using frames so far")
	}

	frames := a.take()
	if len(frames) == 0 {
		p.log.Debug().Msg("capture ended empty")
		return Recording{}, nil
	}
	data, err := p.encode(frames)
	if err != nil {
		return Recording{}, fmt.Errorf("encode capture: %w", err)
	}
	rec := Recording{
		Data:     data,
		MIME:     MIMEType,
		Frames:   len(frames),
		Duration: time.Duration(len(frames)) * FrameDuration,
	}
	p.log.Debug().Int("frames", rec.Frames).Int("bytes", len(data)).Msg("capture ended")
	return rec, nil
}

// encodeOgg packetises Opus frames as RTP and muxes them into one Ogg stream.
func encodeOgg(frames [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	ssrc := rand.Uint32()
	seq := uint16(rand.Uint32())
	for i, f := range frames {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: seq + uint16(i),
				Timestamp:      uint32(i * samplesPerFrame),
				SSRC:           ssrc,
			},
			Payload: f,
		}
		if err := w.WriteRTP(pkt); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
