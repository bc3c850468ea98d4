package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWALAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := OpenWAL(path)
	require.NoError(t, err)

	recs := []Record{
		{Op: OpInsert, VectorID: 0, Payload: []byte{1, 2, 3, 4}},
		{Op: OpInsertMetadata, VectorID: 0, Payload: []byte("color=red")},
		{Op: OpSoftDelete, VectorID: 0, Payload: nil},
		{Op: OpCheckpoint, VectorID: 0, Payload: nil},
	}
	for _, r := range recs {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())

	replayed, err := ReplayWAL(path)
	require.NoError(t, err)
	require.Len(t, replayed, len(recs))
	for i, r := range recs {
		assert.Equal(t, r.Op, replayed[i].Op)
		assert.Equal(t, r.VectorID, replayed[i].VectorID)
		assert.Equal(t, r.Payload, replayed[i].Payload)
	}
}

func TestReplayWALMissingFileReturnsEmpty(t *testing.T) {
	records, err := ReplayWAL(filepath.Join(t.TempDir(), "missing.log"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReplayWALTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Op: OpInsert, VectorID: 1, Payload: []byte{9, 9, 9}}))
	require.NoError(t, w.Close())

	// Simulate a crash mid-append: append a second record's header and
	// part of its payload, but not its CRC.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	partial := encodeRecord(Record{Op: OpInsert, VectorID: 2, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	_, err = f.Write(partial[:len(partial)-5]) // drop crc and last payload byte
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := ReplayWAL(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.EqualValues(t, 1, records[0].VectorID)
}

func TestReplayWALCorruptedRecordErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Op: OpInsert, VectorID: 1, Payload: []byte{1, 2, 3}}))
	require.NoError(t, w.Append(Record{Op: OpInsert, VectorID: 2, Payload: []byte{4, 5, 6}}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF // flip a bit in the first record's op byte
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = ReplayWAL(path)
	require.ErrorIs(t, err, ErrWALCorrupted)
}

func TestTruncateWALEmptiesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Op: OpInsert, VectorID: 1, Payload: []byte{1}}))
	require.NoError(t, w.Close())

	require.NoError(t, TruncateWAL(path))

	records, err := ReplayWAL(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWALAppendAfterCloseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = w.Append(Record{Op: OpInsert, VectorID: 1})
	assert.ErrorIs(t, err, ErrWALClosed)
}
