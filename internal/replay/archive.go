package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var archiveNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes the archive bundle layout so tooling can locate the
// streams without guessing file names.
type Manifest struct {
	Version    int    `json:"version"`
	MatchID    string `json:"match_id"`
	CreatedAt  string `json:"created_at"`
	Entries    int    `json:"entries"`
	EventsPath string `json:"events_path"`
	FramesPath string `json:"frames_path"`
}

// Archive writes a finished recording to root/<match>-<stamp>/ as a
// snappy-compressed JSONL event stream plus a zstd stream of
// length-prefixed snapshot frames. Best effort: the in-memory ring stays
// the contract and callers treat a failed archive as a logged warning.
func Archive(root, matchID string, entries []Entry) (Manifest, error) {
	if root == "" {
		return Manifest{}, fmt.Errorf("replay: archive root not configured")
	}

	cleaned := archiveNameCleaner.ReplaceAllString(matchID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := time.Now().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		Version:    1,
		MatchID:    matchID,
		CreatedAt:  created.Format(time.RFC3339Nano),
		Entries:    len(entries),
		EventsPath: "events.jsonl.sz",
		FramesPath: "frames.bin.zst",
	}

	if err := writeEvents(filepath.Join(dir, manifest.EventsPath), entries); err != nil {
		return Manifest{}, err
	}
	if err := writeFrames(filepath.Join(dir, manifest.FramesPath), entries); err != nil {
		return Manifest{}, err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// writeEvents streams one JSON line per entry through snappy.
func writeEvents(path string, entries []Entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	stream := snappy.NewBufferedWriter(f)
	defer func() {
		if cerr := stream.Close(); err == nil {
			err = cerr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	for _, e := range entries {
		line, merr := json.Marshal(struct {
			RelativeMs int64  `json:"relative_ms"`
			AbsoluteMs int64  `json:"absolute_ms"`
			Tick       uint64 `json:"tick"`
			Status     string `json:"status"`
		}{e.RelativeMs, e.AbsoluteMs, e.Snapshot.Tick, string(e.Snapshot.Status)})
		if merr != nil {
			return merr
		}
		if _, werr := stream.Write(append(line, '\n')); werr != nil {
			return werr
		}
	}
	return nil
}

// writeFrames streams length-prefixed snapshot JSON through zstd so a
// replayer can step entry by entry without loading the whole file.
func writeFrames(path string, entries []Entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	stream, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	defer func() {
		if cerr := stream.Close(); err == nil {
			err = cerr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	header := make([]byte, 8+8+4)
	for _, e := range entries {
		payload, merr := json.Marshal(e.Snapshot)
		if merr != nil {
			return merr
		}
		binary.LittleEndian.PutUint64(header[0:8], uint64(e.RelativeMs))
		binary.LittleEndian.PutUint64(header[8:16], e.Snapshot.Tick)
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(payload)))
		if _, werr := stream.Write(header); werr != nil {
			return werr
		}
		if _, werr := stream.Write(payload); werr != nil {
			return werr
		}
	}
	return nil
}
