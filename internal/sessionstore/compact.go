package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Compact rewrites the store's full history into fresh segments and a
// rebuilt index, discarding the old segment files. This is a supplemental
// operation (the append protocol itself never reclaims space) useful for
// long-lived sessions that have rotated through many small segments; it
// preserves entry_seq, entry_id and payload bytes exactly, only segment_seq
// and frame_seq are renumbered starting from segment 1. The rewrite rotates
// at maxSegmentBytes like Append, so the result is a single segment only
// when the whole history fits in one. The store must not be written to
// concurrently with Compact.
func (s *Store) Compact() error {
	frames, err := s.ReadAll()
	if err != nil {
		return fmt.Errorf("sessionstore: compact: read existing frames: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.segWriter.Flush(); err != nil {
		return fmt.Errorf("sessionstore: compact: flush active segment: %w", err)
	}
	if err := s.segFile.Close(); err != nil {
		return fmt.Errorf("sessionstore: compact: close active segment: %w", err)
	}
	if err := s.idxFile.Close(); err != nil {
		return fmt.Errorf("sessionstore: compact: close index: %w", err)
	}

	oldSegmentsDir := filepath.Join(s.dir, "segments")
	entries, err := os.ReadDir(oldSegmentsDir)
	if err != nil {
		return fmt.Errorf("sessionstore: compact: list segments: %w", err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(oldSegmentsDir, e.Name())); err != nil {
			return fmt.Errorf("sessionstore: compact: remove old segment %s: %w", e.Name(), err)
		}
	}
	if err := os.Remove(s.indexPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionstore: compact: remove old index: %w", err)
	}

	s.nextSegmentSeq = 1
	s.nextFrameSeq = 1
	s.segmentBytes = 0
	if err := s.openActiveSegment(); err != nil {
		return fmt.Errorf("sessionstore: compact: reopen segment: %w", err)
	}
	if err := s.openIndex(); err != nil {
		return fmt.Errorf("sessionstore: compact: reopen index: %w", err)
	}

	for _, frame := range frames {
		if _, err := s.appendExistingLocked(frame.EntryID, frame.Payload, frame.EntrySeq); err != nil {
			return fmt.Errorf("sessionstore: compact: rewrite entry_seq %d: %w", frame.EntrySeq, err)
		}
	}
	return nil
}

// appendExistingLocked is Append's body specialized for Compact: it reuses a
// caller-supplied entry_seq instead of minting a new one, since Compact
// preserves history rather than creating it. Caller holds s.mu.
func (s *Store) appendExistingLocked(entryID string, payload json.RawMessage, entrySeq uint64) (Frame, error) {
	frame := Frame{
		EntrySeq:   entrySeq,
		EntryID:    entryID,
		SegmentSeq: s.nextSegmentSeq,
		FrameSeq:   s.nextFrameSeq,
		Payload:    payload,
	}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return Frame{}, err
	}
	line := append(encoded, '\n')

	if s.segmentBytes > 0 && s.segmentBytes+int64(len(line)) > s.maxSegmentBytes {
		if err := s.rotateLocked(); err != nil {
			return Frame{}, err
		}
		frame.SegmentSeq = s.nextSegmentSeq
		frame.FrameSeq = s.nextFrameSeq
		encoded, err = json.Marshal(frame)
		if err != nil {
			return Frame{}, err
		}
		line = append(encoded, '\n')
	}

	offset := s.segmentBytes
	if _, err := s.segWriter.Write(line); err != nil {
		return Frame{}, err
	}
	if err := s.segWriter.Flush(); err != nil {
		return Frame{}, err
	}
	s.segmentBytes += int64(len(line))

	crc := crc32cString(line)
	canon := []byte(payload)
	sum := sha256Hex(canon)

	idxRow := OffsetIndexEntry{
		EntrySeq:      frame.EntrySeq,
		EntryID:       frame.EntryID,
		SegmentSeq:    frame.SegmentSeq,
		FrameSeq:      frame.FrameSeq,
		ByteOffset:    offset,
		ByteLength:    int64(len(line)),
		CRC32C:        crc,
		State:         "active",
		PayloadSHA256: sum,
		PayloadBytes:  int64(len(canon)),
	}
	idxLine, err := json.Marshal(idxRow)
	if err != nil {
		return Frame{}, err
	}
	idxLine = append(idxLine, '\n')
	if _, err := s.idxFile.Write(idxLine); err != nil {
		return Frame{}, err
	}

	s.nextFrameSeq++
	return frame, nil
}
