package updates

import (
	"bytes"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{"": CodecNone, "none": CodecNone, "lz4": CodecLZ4, "zstd": CodecZstd} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCodec("snappy")
	assert.Error(t, err)
	assert.Equal(t, "zstd", CodecZstd.String())
}

func TestSpool_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":        {},
		"small":        []byte(`[{"id":1}]`),
		"compressible": bytes.Repeat([]byte(`{"id":1,"title":"the quick brown fox"},`), 500),
	}
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			s := NewSpool(t.TempDir(), codec)
			index := uuid.New()
			var id uint64
			for name, payload := range payloads {
				require.NoError(t, s.Write(index, id, payload), name)
				got, err := s.Read(index, id)
				require.NoError(t, err, name)
				assert.Equal(t, len(payload), len(got), name)
				assert.True(t, bytes.Equal(payload, got), name)
				id++
			}
		})
	}
}

func TestSpool_CompressesOnDisk(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	for _, codec := range []Codec{CodecLZ4, CodecZstd} {
		s := NewSpool(t.TempDir(), codec)
		index := uuid.New()
		require.NoError(t, s.Write(index, 0, payload))
		info, err := os.Stat(s.path(index, 0))
		require.NoError(t, err)
		assert.Less(t, info.Size(), int64(len(payload)/4), codec.String())
	}
}

func TestSpool_MissingAndRemove(t *testing.T) {
	s := NewSpool(t.TempDir(), CodecZstd)
	index := uuid.New()

	got, err := s.Read(index, 7)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Write(index, 7, []byte("x")))
	require.NoError(t, s.Remove(index, 7))
	require.NoError(t, s.Remove(index, 7))
	_, err = os.Stat(s.path(index, 7))
	assert.True(t, os.IsNotExist(err))
}

func TestSpool_Corrupt(t *testing.T) {
	s := NewSpool(t.TempDir(), CodecNone)
	index := uuid.New()
	require.NoError(t, s.Write(index, 0, []byte("hello")))

	path := s.path(index, 0)
	require.NoError(t, os.WriteFile(path, []byte{0, 1}, 0644))
	_, err := s.Read(index, 0)
	assert.ErrorIs(t, err, ErrCorruptPayload)

	buf, err := encodePayload(CodecNone, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, buf[:len(buf)-1], 0644))
	_, err = s.Read(index, 0)
	assert.ErrorIs(t, err, ErrCorruptPayload)

	buf[0] = 9
	require.NoError(t, os.WriteFile(path, buf, 0644))
	_, err = s.Read(index, 0)
	assert.ErrorIs(t, err, ErrCorruptPayload)
}
