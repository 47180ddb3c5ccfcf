package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/kvlite/internal/conv"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a value compression algorithm.
type Algorithm uint8

const (
	// None stores values verbatim, without a header.
	None Algorithm = 0
	// LZ4 uses LZ4 block compression (fast, moderate ratio).
	LZ4 Algorithm = 1
	// ZSTD uses Zstandard (better ratio, slower).
	ZSTD Algorithm = 2
)

// String returns the stable name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// ParseAlgorithm is the inverse of Algorithm.String.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression algorithm %q", name)
	}
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	return a <= ZSTD
}

const headerSize = 8

var (
	// ErrCorrupt is returned when an encoded value cannot be decoded.
	ErrCorrupt = errors.New("compress: corrupt value")

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

// Encode compresses data with alg. With None, data is returned unchanged.
func Encode(alg Algorithm, data []byte) ([]byte, error) {
	if alg == None {
		return data, nil
	}

	size, err := conv.BlockLen(len(data))
	if err != nil {
		return nil, err
	}

	var compressed []byte
	switch alg {
	case LZ4:
		compressed, err = encodeLZ4(data)
	case ZSTD:
		compressed = encodeZSTD(data)
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", alg)
	}
	if err != nil {
		return nil, err
	}

	// Not worth it: keep the raw bytes behind a header.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], size)
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[headerSize:], data)
		return out, nil
	}

	csize, err := conv.BlockLen(len(compressed))
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], size)
	binary.LittleEndian.PutUint32(out[4:], csize)
	copy(out[headerSize:], compressed)
	return out, nil
}

func encodeLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func encodeZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

// Decode reverses Encode.
func Decode(alg Algorithm, data []byte) ([]byte, error) {
	if alg == None {
		return data, nil
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}

	usize, err := conv.HeaderLen(binary.LittleEndian.Uint32(data[0:]))
	if err != nil {
		return nil, err
	}
	csize, err := conv.HeaderLen(binary.LittleEndian.Uint32(data[4:]))
	if err != nil {
		return nil, err
	}
	payload := data[headerSize:]

	if csize == 0 {
		if len(payload) != usize {
			return nil, fmt.Errorf("%w: raw size mismatch", ErrCorrupt)
		}
		return payload, nil
	}
	if len(payload) != csize {
		return nil, fmt.Errorf("%w: compressed size mismatch", ErrCorrupt)
	}

	switch alg {
	case LZ4:
		out := make([]byte, usize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if n != usize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(payload, make([]byte, 0, usize))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(out) != usize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", alg)
	}
}
