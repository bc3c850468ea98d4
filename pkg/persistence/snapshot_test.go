package persistence

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader() SnapshotHeader {
	return SnapshotHeader{
		Flags:          FlagSQ8Present,
		Dim:            16,
		M:              16,
		M0:             32,
		EfConstruction: 200,
		EfSearch:       50,
		VectorCount:    50,
		DeletedCount:   3,
	}
}

func TestEncodeDecodeSnapshotRoundTrip(t *testing.T) {
	h := sampleHeader()
	vecs := bytes.Repeat([]byte{0xAB}, 128)
	graph := bytes.Repeat([]byte{0xCD}, 64)
	meta := bytes.Repeat([]byte{0xEF}, 32)

	blob := EncodeSnapshot(h, vecs, graph, meta, false)

	gotHeader, gotVecs, gotGraph, gotMeta, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersionMajor, gotHeader.VersionMajor)
	assert.Equal(t, CurrentVersionMinor, gotHeader.VersionMinor)
	assert.Equal(t, h.Flags, gotHeader.Flags)
	assert.Equal(t, h.Dim, gotHeader.Dim)
	assert.Equal(t, h.VectorCount, gotHeader.VectorCount)
	assert.Equal(t, h.DeletedCount, gotHeader.DeletedCount)
	assert.Equal(t, vecs, gotVecs)
	assert.Equal(t, graph, gotGraph)
	assert.Equal(t, meta, gotMeta)
}

func TestEncodeDecodeSnapshotCompressed(t *testing.T) {
	h := sampleHeader()
	vecs := bytes.Repeat([]byte{0x01, 0x02}, 500)
	graph := bytes.Repeat([]byte{0x03}, 300)
	meta := []byte("some metadata bytes")

	blob := EncodeSnapshot(h, vecs, graph, meta, true)
	gotHeader, gotVecs, gotGraph, gotMeta, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.NotZero(t, gotHeader.Flags&FlagCompressed)
	assert.Equal(t, vecs, gotVecs)
	assert.Equal(t, graph, gotGraph)
	assert.Equal(t, meta, gotMeta)
}

func TestDecodeSnapshotRejectsBadMagic(t *testing.T) {
	blob := EncodeSnapshot(sampleHeader(), []byte("a"), []byte("b"), []byte("c"), false)
	blob[0] = 'X'
	_, _, _, _, err := DecodeSnapshot(blob)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeSnapshotRejectsCorruptCRC(t *testing.T) {
	blob := EncodeSnapshot(sampleHeader(), []byte("a"), []byte("b"), []byte("c"), false)
	blob[len(blob)-1] ^= 0xFF
	_, _, _, _, err := DecodeSnapshot(blob)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestDecodeSnapshotRejectsUnknownMajorVersion(t *testing.T) {
	blob := EncodeSnapshot(sampleHeader(), []byte("a"), []byte("b"), []byte("c"), false)
	blob[4] = 99 // stomp version_major, invalidating the crc deliberately below
	recomputeCRC(blob)
	_, _, _, _, err := DecodeSnapshot(blob)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeSnapshotRejectsTooShort(t *testing.T) {
	_, _, _, _, err := DecodeSnapshot([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestEncodeSnapshotEmptyBlobs(t *testing.T) {
	blob := EncodeSnapshot(sampleHeader(), nil, nil, nil, false)
	h, vecs, graph, meta, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.Equal(t, uint32(50), h.VectorCount)
	assert.Empty(t, vecs)
	assert.Empty(t, graph)
	assert.Empty(t, meta)
}

// recomputeCRC rewrites the trailing CRC32 of a mutated snapshot blob
// so a version/flag tampering test reaches version validation instead
// of failing the earlier CRC check.
func recomputeCRC(blob []byte) {
	body := blob[:len(blob)-4]
	sum := crc32.ChecksumIEEE(body)
	blob[len(blob)-4] = byte(sum)
	blob[len(blob)-3] = byte(sum >> 8)
	blob[len(blob)-2] = byte(sum >> 16)
	blob[len(blob)-1] = byte(sum >> 24)
}
