package fstreedb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfZstd
	vfLZ4
	vfChecksum

	vfVerMask         = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1            = vfVerBit0
	vfCompressionMask = (vfZstd | vfLZ4)
	vfSupportedMask   = (vfVer1 | vfCompressionMask | vfChecksum)
	vfDefault         = vfVer1

	minValueSize = 4
	checksumSize = 8

	// limits on the declared size of a compressed payload
	maxPayloadSize       = 1 << 30
	maxCompressionFactor = 1024
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

// valueOpts controls how payloads are written; reading only relies on flags.
type valueOpts struct {
	compression CompressionType
	threshold   int
	checksums   bool
}

// value is a decoded stored entry.
//
// Layout: flags, version, raw size, stored size (all uvarint), stored bytes,
// then an xxhash64 of the stored bytes when vfChecksum is set.
type value struct {
	Flags   valueFlags
	Version uint64
	Payload []byte
}

func appendValue(buf []byte, version uint64, payload []byte, opt valueOpts) ([]byte, error) {
	flags := vfDefault
	stored := payload
	if opt.compression != CompressionNone && len(payload) >= opt.threshold {
		compressed, err := compress(opt.compression, payload)
		if err != nil {
			return nil, err
		}
		if compressed != nil {
			stored = compressed
			flags |= opt.compression.flag()
		}
	}
	if opt.checksums {
		flags |= vfChecksum
	}

	buf = binary.AppendUvarint(buf, uint64(flags))
	buf = binary.AppendUvarint(buf, version)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = binary.AppendUvarint(buf, uint64(len(stored)))
	buf = append(buf, stored...)
	if opt.checksums {
		buf = binary.BigEndian.AppendUint64(buf, xxhash.Sum64(stored))
	}
	return buf, nil
}

func (vle *value) decode(data []byte) error {
	if len(data) < minValueSize {
		return dataErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := envelopeReader{data: data}

	v, err := d.Uvarint()
	if err != nil {
		return err
	}
	if (v & ^uint64(vfSupportedMask)) != 0 {
		return dataErrf(data, 0, nil, "invalid value: unsupported flags %x", v)
	}
	vle.Flags = valueFlags(v)
	if vle.Flags.ver() != vfVer1 {
		return dataErrf(data, 0, nil, "invalid value: unsupported format version %d", uint64(vle.Flags.ver()))
	}

	vle.Version, err = d.Uvarint()
	if err != nil {
		return err
	}

	sizeOff := d.Off()
	rawSize, err := d.Uvarint()
	if err != nil {
		return err
	}
	stored, err := d.VarBytes()
	if err != nil {
		return err
	}
	if vle.Flags&vfCompressionMask == 0 {
		if rawSize != uint64(len(stored)) {
			return dataErrf(data, sizeOff, nil, "invalid value: got %d payload bytes, expected %d", len(stored), rawSize)
		}
	} else if rawSize > maxPayloadSize || rawSize > uint64(len(stored))*maxCompressionFactor {
		return dataErrf(data, sizeOff, nil, "invalid value: implausible uncompressed size %d for %d stored bytes", rawSize, len(stored))
	}

	if vle.Flags&vfChecksum != 0 {
		sum, err := d.Raw(checksumSize)
		if err != nil {
			return err
		}
		if binary.BigEndian.Uint64(sum) != xxhash.Sum64(stored) {
			return dataErrf(data, d.Off()-checksumSize, nil, "invalid value: checksum mismatch")
		}
	}
	if d.Remaining() != 0 {
		return dataErrf(data, d.Off(), nil, "invalid value: %d trailing bytes", d.Remaining())
	}

	vle.Payload, err = decompress(vle.Flags, stored, rawSize)
	if err != nil {
		return dataErrf(data, 0, err, "invalid value: cannot decompress")
	}
	if uint64(len(vle.Payload)) != rawSize {
		return dataErrf(data, 0, nil, "invalid value: got %d payload bytes, expected %d", len(vle.Payload), rawSize)
	}
	return nil
}

// envelopeReader consumes the fields of a stored value in order.
type envelopeReader struct {
	data []byte
	off  int
}

func (r *envelopeReader) Off() int {
	return r.off
}

func (r *envelopeReader) Remaining() int {
	return len(r.data) - r.off
}

func (r *envelopeReader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, dataErrf(r.data, r.off, nil, "invalid uvarint")
	}
	r.off += n
	return v, nil
}

func (r *envelopeReader) Raw(n uint64) ([]byte, error) {
	if uint64(r.Remaining()) < n {
		return nil, dataErrf(r.data, r.off, nil, "not enough data: %d bytes remaining, %d wanted", r.Remaining(), n)
	}
	v := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

// VarBytes reads a uvarint length followed by that many bytes.
func (r *envelopeReader) VarBytes() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	return r.Raw(n)
}
