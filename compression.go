package fstreedb

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects how large payloads are compressed at rest.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	// CompressionLZ4 is fast, good for hot data.
	CompressionLZ4
	// CompressionZSTD has a better ratio.
	CompressionZSTD
)

const defaultCompressionThreshold = 512

func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", int(ct))
	}
}

func (ct CompressionType) flag() valueFlags {
	switch ct {
	case CompressionLZ4:
		return vfLZ4
	case CompressionZSTD:
		return vfZstd
	default:
		return 0
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

// compress returns nil if the payload does not shrink.
func compress(ct CompressionType, data []byte) ([]byte, error) {
	var out []byte
	switch ct {
	case CompressionNone:
		return nil, nil
	case CompressionLZ4:
		out = make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, err
		}
		out = out[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		panic(fmt.Errorf("unsupported compression %v", ct))
	}
	if len(out) == 0 || len(out) >= len(data) {
		return nil, nil
	}
	return out, nil
}

func decompress(flags valueFlags, data []byte, rawSize uint64) ([]byte, error) {
	switch flags & vfCompressionMask {
	case 0:
		return data, nil
	case vfLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if uint64(n) != rawSize {
			return nil, fmt.Errorf("lz4: decompressed %d bytes, expected %d", n, rawSize)
		}
		return out, nil
	case vfZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if uint64(len(out)) != rawSize {
			return nil, fmt.Errorf("zstd: decompressed %d bytes, expected %d", len(out), rawSize)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("conflicting compression flags %x", uint64(flags))
	}
}
