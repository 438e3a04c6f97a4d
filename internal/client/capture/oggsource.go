package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

var opusTags = []byte("OpusTags")

// OggSource is a Microphone fed by an Ogg/Opus stream on disk, usually a FIFO
// written by an external recorder. Every page must carry one Opus packet.
type OggSource struct {
	Path string
}

func (s OggSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%s: %w", s.Path, domain.ErrPermissionDenied)
		}
		return nil, err
	}
	st := &oggStream{f: f, frames: make(chan []byte), stop: make(chan struct{})}
	go st.run()
	return st, nil
}

type oggStream struct {
	f      *os.File
	frames chan []byte
	stop   chan struct{}
	once   sync.Once
}

func (s *oggStream) run() {
	defer close(s.frames)
	r, _, err := oggreader.NewWith(s.f)
	if err != nil {
		return
	}
	for {
		payload, _, err := r.ParseNextPage()
		if err != nil {
			return
		}
		if bytes.HasPrefix(payload, opusTags) {
			continue
		}
		select {
		case s.frames <- payload:
		case <-s.stop:
			return
		}
	}
}

func (s *oggStream) Frames() <-chan []byte { return s.frames }

func (s *oggStream) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *oggStream) Close() error { return s.f.Close() }
