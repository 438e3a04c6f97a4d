package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	frames  chan []byte
	stopped atomic.Bool
	closed  atomic.Int32
}

func newFakeStream(frames ...[]byte) *fakeStream {
	s := &fakeStream{frames: make(chan []byte, len(frames)+1)}
	for _, f := range frames {
		s.frames <- f
	}
	return s
}

func (s *fakeStream) Frames() <-chan []byte { return s.frames }

func (s *fakeStream) Stop() error {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.frames)
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeMic struct {
	next  *fakeStream
	err   error
	opens int
}

func (m *fakeMic) Open(context.Context) (Stream, error) {
	m.opens++
	if m.err != nil {
		return nil, m.err
	}
	return m.next, nil
}

func opusFrame(i int) []byte {
	// TOC byte for a 20 ms CELT frame followed by filler.
	return append([]byte{0xfc}, bytes.Repeat([]byte{byte(i)}, 40)...)
}

func TestPipeline_EncodesOggContainer(t *testing.T) {
	stream := newFakeStream(opusFrame(1), opusFrame(2), nil, opusFrame(3))
	p := NewPipeline(&fakeMic{next: stream}, zerolog.Nop())

	require.NoError(t, p.Begin(context.Background()))
	assert.True(t, p.Active())
	rec, err := p.End()
	require.NoError(t, err)

	assert.False(t, rec.Empty())
	assert.Equal(t, MIMEType, rec.MIME)
	assert.Equal(t, 3, rec.Frames)
	assert.Equal(t, 3*FrameDuration, rec.Duration)
	assert.True(t, bytes.HasPrefix(rec.Data, []byte("OggS")))
	assert.True(t, bytes.Contains(rec.Data, []byte("OpusHead")))
	assert.EqualValues(t, 1, stream.closed.Load())
	assert.False(t, p.Active())
}

func TestPipeline_ZeroChunksIsEmpty(t *testing.T) {
	stream := newFakeStream()
	p := NewPipeline(&fakeMic{next: stream}, zerolog.Nop())

	require.NoError(t, p.Begin(context.Background()))
	rec, err := p.End()
	require.NoError(t, err)
	assert.True(t, rec.Empty())
	assert.EqualValues(t, 1, stream.closed.Load())
}

func TestPipeline_OneCaptureAtATime(t *testing.T) {
	mic := &fakeMic{next: newFakeStream(opusFrame(1))}
	p := NewPipeline(mic, zerolog.Nop())

	require.NoError(t, p.Begin(context.Background()))
	assert.ErrorIs(t, p.Begin(context.Background()), domain.ErrAlreadyRecording)
	assert.Equal(t, 1, mic.opens)

	_, err := p.End()
	require.NoError(t, err)

	mic.next = newFakeStream()
	require.NoError(t, p.Begin(context.Background()))
	_, err = p.End()
	require.NoError(t, err)
}

func TestPipeline_PermissionDenied(t *testing.T) {
	mic := &fakeMic{err: fmt.Errorf("browser said no: %w", domain.ErrPermissionDenied)}
	p := NewPipeline(mic, zerolog.Nop())

	err := p.Begin(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.False(t, p.Active())

	mic.err = errors.New("device busy")
	err = p.Begin(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = p.End()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestPipeline_ReleasesDeviceWhenEncodingFails(t *testing.T) {
	stream := newFakeStream(opusFrame(1))
	p := NewPipeline(&fakeMic{next: stream}, zerolog.Nop())
	p.encode = func([][]byte) ([]byte, error) { return nil, errors.New("muxer exploded") }

	require.NoError(t, p.Begin(context.Background()))
	rec, err := p.End()
	assert.Error(t, err)
	assert.True(t, rec.Empty())
	assert.EqualValues(t, 1, stream.closed.Load())
	assert.False(t, p.Active())
}
