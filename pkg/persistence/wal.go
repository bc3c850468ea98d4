package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Record framing: [op 1][vector_id 4][payload_len 4][payload payload_len][crc32 4]
// all integers little-endian. crc32 covers every byte from op through
// the end of payload.
const recordHeaderLen = 1 + 4 + 4
const recordCRCLen = 4

var (
	// ErrWALClosed is returned by operations attempted after Close.
	ErrWALClosed = errors.New("persistence: wal closed")
	// ErrWALCorrupted is returned when a complete (non-trailing) record
	// fails its CRC check. A torn trailing record is not an error; it is
	// silently dropped by Replay.
	ErrWALCorrupted = errors.New("persistence: wal record checksum mismatch")
)

// WAL is an append-only log of Records: a mutex-guarded bufio.Writer
// over an append-mode file. EdgeVec spawns no background threads, so
// there is no batch-sync goroutine: every Append flushes synchronously
// and Sync additionally fsyncs.
type WAL struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

// OpenWAL opens (creating if necessary) the WAL file at path for
// appending.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open wal: %w", err)
	}
	return &WAL{
		file:   f,
		writer: bufio.NewWriterSize(f, 64*1024),
	}, nil
}

// Append frames rec and writes it, flushing the buffer before
// returning so a subsequent crash cannot lose an acknowledged Append
// without also losing the fsync boundary Sync provides.
func (w *WAL) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWALClosed
	}

	buf := encodeRecord(rec)
	if _, err := w.writer.Write(buf); err != nil {
		return fmt.Errorf("persistence: wal append: %w", err)
	}
	return w.writer.Flush()
}

func encodeRecord(rec Record) []byte {
	body := make([]byte, recordHeaderLen+len(rec.Payload))
	body[0] = byte(rec.Op)
	binary.LittleEndian.PutUint32(body[1:5], rec.VectorID)
	binary.LittleEndian.PutUint32(body[5:9], uint32(len(rec.Payload)))
	copy(body[recordHeaderLen:], rec.Payload)

	sum := crc32.ChecksumIEEE(body)
	out := make([]byte, len(body)+recordCRCLen)
	copy(out, body)
	binary.LittleEndian.PutUint32(out[len(body):], sum)
	return out
}

// Sync flushes buffered writes and fsyncs the underlying file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWALClosed
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("persistence: wal flush: %w", err)
	}
	return w.file.Sync()
}

// Close flushes, fsyncs, and closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("persistence: wal flush on close: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("persistence: wal sync on close: %w", err)
	}
	return w.file.Close()
}

// ReplayWAL reads every well-formed record from the WAL file at path,
// in append order. A trailing record that is shorter than its framed
// length (a torn write from a crash mid-Append) is silently dropped. A
// complete record whose CRC does not match is a genuine corruption and
// returns ErrWALCorrupted; only the trailing record gets the torn-tail
// leniency.
func ReplayWAL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: open wal for replay: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []Record

	for {
		header := make([]byte, recordHeaderLen)
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("persistence: read wal header: %w", err)
		}

		payloadLen := binary.LittleEndian.Uint32(header[5:9])
		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
		}
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break // torn tail: incomplete payload
			}
			return nil, fmt.Errorf("persistence: read wal payload: %w", err)
		}

		crcBuf := make([]byte, recordCRCLen)
		if _, err := io.ReadFull(r, crcBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break // torn tail: missing trailing crc
			}
			return nil, fmt.Errorf("persistence: read wal crc: %w", err)
		}

		body := append(append([]byte{}, header...), payload...)
		want := binary.LittleEndian.Uint32(crcBuf)
		got := crc32.ChecksumIEEE(body)
		if want != got {
			return nil, ErrWALCorrupted
		}

		records = append(records, Record{
			Op:       Op(header[0]),
			VectorID: binary.LittleEndian.Uint32(header[1:5]),
			Payload:  payload,
		})
	}

	return records, nil
}

// TruncateWAL empties the WAL file at path, used after a successful
// snapshot write makes the prior records redundant.
func TruncateWAL(path string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: truncate wal: %w", err)
	}
	return f.Close()
}
