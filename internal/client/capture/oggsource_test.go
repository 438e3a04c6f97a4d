package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOggSource_ReplaysEncodedPackets(t *testing.T) {
	data, err := encodeOgg([][]byte{opusFrame(1), opusFrame(2), opusFrame(3)})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mic.ogg")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	st, err := OggSource{Path: path}.Open(context.Background())
	require.NoError(t, err)
	defer func() { assert.NoError(t, st.Close()) }()

	var got [][]byte
	for f := range st.Frames() {
		got = append(got, f)
	}
	require.Len(t, got, 3)
	assert.Equal(t, opusFrame(1), got[0])
	assert.Equal(t, opusFrame(3), got[2])
	assert.NoError(t, st.Stop())
}

func TestOggSource_MissingDevice(t *testing.T) {
	_, err := OggSource{Path: filepath.Join(t.TempDir(), "nope")}.Open(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
