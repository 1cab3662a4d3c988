package updates

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how spooled payloads are compressed.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

// ErrCorruptPayload is returned when a spooled payload cannot be decoded.
var ErrCorruptPayload = errors.New("updates: corrupt payload file")

const payloadHeaderSize = 9

// ParseCodec maps a config value to a Codec. The empty string means none.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("unknown payload codec %q", name)
	}
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Spool keeps update payloads on disk until their update is terminal. Each
// file is [codec u8][uncompressed length u64 LE][data].
type Spool struct {
	dir   string
	codec Codec
}

func NewSpool(dir string, codec Codec) *Spool {
	return &Spool{dir: dir, codec: codec}
}

func (s *Spool) path(index uuid.UUID, id uint64) string {
	return filepath.Join(s.dir, index.String(), strconv.FormatUint(id, 10)+".payload")
}

// Write stores payload for the update, replacing any previous file.
func (s *Spool) Write(index uuid.UUID, id uint64, payload []byte) error {
	buf, err := encodePayload(s.codec, payload)
	if err != nil {
		return err
	}
	path := s.path(index, id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating spool directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("writing payload %d: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing payload %d: %w", id, err)
	}
	return nil
}

// Read returns the payload of the update. A missing file yields an empty
// payload; updates without a body never write one.
func (s *Spool) Read(index uuid.UUID, id uint64) ([]byte, error) {
	buf, err := os.ReadFile(s.path(index, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading payload %d: %w", id, err)
	}
	return decodePayload(buf)
}

// Remove deletes the payload file of the update if there is one.
func (s *Spool) Remove(index uuid.UUID, id uint64) error {
	if err := os.Remove(s.path(index, id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func encodePayload(codec Codec, payload []byte) ([]byte, error) {
	var body []byte
	switch codec {
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compressing payload: %w", err)
		}
		if n == 0 {
			// incompressible
			codec = CodecNone
			body = payload
		} else {
			body = dst[:n]
		}
	case CodecZstd:
		enc := getZstdEncoder()
		body = enc.EncodeAll(payload, nil)
		zstdEncoderPool.Put(enc)
	default:
		codec = CodecNone
		body = payload
	}
	buf := make([]byte, payloadHeaderSize, payloadHeaderSize+len(body))
	buf[0] = byte(codec)
	binary.LittleEndian.PutUint64(buf[1:], uint64(len(payload)))
	return append(buf, body...), nil
}

func decodePayload(buf []byte) ([]byte, error) {
	if len(buf) < payloadHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptPayload, len(buf))
	}
	codec := Codec(buf[0])
	size := binary.LittleEndian.Uint64(buf[1:])
	body := buf[payloadHeaderSize:]
	switch codec {
	case CodecNone:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: length %d, header says %d", ErrCorruptPayload, len(body), size)
		}
		return body, nil
	case CodecLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrCorruptPayload, n, size)
		}
		return out, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrCorruptPayload, len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrCorruptPayload, codec)
	}
}
