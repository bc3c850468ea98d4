package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/s2"
)

// snapshotMagic identifies an EdgeVec snapshot blob. Any other 4 bytes
// at offset 0 is rejected by DecodeSnapshot as ErrBadMagic.
const snapshotMagic = "EVSN"

// CurrentVersionMajor/Minor are the version EncodeSnapshot stamps. A
// reader accepts any equal-or-lower minor version of the same major
// and rejects unknown majors.
const (
	CurrentVersionMajor uint16 = 1
	CurrentVersionMinor uint16 = 0
)

// Header flag bits.
const (
	FlagBQPresent  uint32 = 1 << 0
	FlagSQ8Present uint32 = 1 << 1
	FlagCompressed uint32 = 1 << 2
)

const (
	headerLen   = 60 // fixed header region, reserved bytes included
	reservedAt  = 40
	reservedLen = headerLen - reservedAt
)

var (
	ErrBadMagic           = errors.New("persistence: bad snapshot magic")
	ErrUnsupportedVersion = errors.New("persistence: unsupported snapshot version")
	ErrCorruptSnapshot    = errors.New("persistence: snapshot checksum mismatch")
)

// SnapshotHeader is the fixed-offset field set of a snapshot blob.
// VersionMajor/Minor are filled in by EncodeSnapshot and ignored on
// input.
type SnapshotHeader struct {
	VersionMajor   uint16
	VersionMinor   uint16
	Flags          uint32
	Dim            uint32
	M              uint32
	M0             uint32
	EfConstruction uint32
	EfSearch       uint32
	VectorCount    uint32
	DeletedCount   uint32
}

// EncodeSnapshot assembles a header and three opaque blobs into a
// single self-describing buffer: magic, version, header fields, each
// blob length-prefixed, and a trailing CRC32 over everything before
// it. When compress is true the blob section, length prefixes
// included, is s2-compressed as a whole and FlagCompressed is set,
// using the same block-compression library
// badger depends on transitively (klauspost/compress/s2).
func EncodeSnapshot(h SnapshotHeader, vectorBlob, graphBlob, metadataBlob []byte, compress bool) []byte {
	h.VersionMajor = CurrentVersionMajor
	h.VersionMinor = CurrentVersionMinor

	payload := encodeBlobSection(vectorBlob, graphBlob, metadataBlob)
	flags := h.Flags
	if compress {
		payload = s2.Encode(nil, payload)
		flags |= FlagCompressed
	}

	buf := make([]byte, headerLen)
	copy(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMajor)
	binary.LittleEndian.PutUint16(buf[6:8], h.VersionMinor)
	binary.LittleEndian.PutUint32(buf[8:12], flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.Dim)
	binary.LittleEndian.PutUint32(buf[16:20], h.M)
	binary.LittleEndian.PutUint32(buf[20:24], h.M0)
	binary.LittleEndian.PutUint32(buf[24:28], h.EfConstruction)
	binary.LittleEndian.PutUint32(buf[28:32], h.EfSearch)
	binary.LittleEndian.PutUint32(buf[32:36], h.VectorCount)
	binary.LittleEndian.PutUint32(buf[36:40], h.DeletedCount)
	// buf[40:60] reserved, left zero.

	buf = append(buf, payload...)

	sum := crc32.ChecksumIEEE(buf)
	crcBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBuf, sum)
	return append(buf, crcBuf...)
}

// encodeBlobSection concatenates the three blobs, each preceded by a
// little-endian u32 length so DecodeSnapshot can split them back apart
// without the blobs needing self-describing terminators.
func encodeBlobSection(vectorBlob, graphBlob, metadataBlob []byte) []byte {
	var out []byte
	for _, b := range [][]byte{vectorBlob, graphBlob, metadataBlob} {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(b)))
		out = append(out, lenBuf...)
		out = append(out, b...)
	}
	return out
}

// DecodeSnapshot validates data's magic, version, and trailing CRC,
// decompresses the blob section if FlagCompressed is set, and splits
// it back into the three blobs EncodeSnapshot assembled.
func DecodeSnapshot(data []byte) (SnapshotHeader, []byte, []byte, []byte, error) {
	var h SnapshotHeader
	if len(data) < headerLen+4 {
		return h, nil, nil, nil, fmt.Errorf("%w: snapshot too short", ErrCorruptSnapshot)
	}

	if string(data[0:4]) != snapshotMagic {
		return h, nil, nil, nil, ErrBadMagic
	}

	body := data[:len(data)-4]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return h, nil, nil, nil, ErrCorruptSnapshot
	}

	h.VersionMajor = binary.LittleEndian.Uint16(data[4:6])
	h.VersionMinor = binary.LittleEndian.Uint16(data[6:8])
	if h.VersionMajor != CurrentVersionMajor {
		return h, nil, nil, nil, fmt.Errorf("%w: major %d", ErrUnsupportedVersion, h.VersionMajor)
	}
	if h.VersionMinor > CurrentVersionMinor {
		return h, nil, nil, nil, fmt.Errorf("%w: minor %d newer than reader's %d", ErrUnsupportedVersion, h.VersionMinor, CurrentVersionMinor)
	}

	h.Flags = binary.LittleEndian.Uint32(data[8:12])
	h.Dim = binary.LittleEndian.Uint32(data[12:16])
	h.M = binary.LittleEndian.Uint32(data[16:20])
	h.M0 = binary.LittleEndian.Uint32(data[20:24])
	h.EfConstruction = binary.LittleEndian.Uint32(data[24:28])
	h.EfSearch = binary.LittleEndian.Uint32(data[28:32])
	h.VectorCount = binary.LittleEndian.Uint32(data[32:36])
	h.DeletedCount = binary.LittleEndian.Uint32(data[36:40])

	payload := body[headerLen:]
	if h.Flags&FlagCompressed != 0 {
		decoded, err := s2.Decode(nil, payload)
		if err != nil {
			return h, nil, nil, nil, fmt.Errorf("%w: s2 decompress: %v", ErrCorruptSnapshot, err)
		}
		payload = decoded
	}

	blobs, err := splitBlobSection(payload, 3)
	if err != nil {
		return h, nil, nil, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return h, blobs[0], blobs[1], blobs[2], nil
}

func splitBlobSection(payload []byte, count int) ([][]byte, error) {
	blobs := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(payload) < 4 {
			return nil, errors.New("truncated blob length prefix")
		}
		n := binary.LittleEndian.Uint32(payload[:4])
		payload = payload[4:]
		if uint32(len(payload)) < n {
			return nil, errors.New("truncated blob body")
		}
		blobs = append(blobs, payload[:n])
		payload = payload[n:]
	}
	return blobs, nil
}
