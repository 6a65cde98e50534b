package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/monitoring"
)

// replayRecord is one line of a JSONL detection capture.
type replayRecord struct {
	FrameIndex int64                `json:"frame_index"`
	Timestamp  time.Time            `json:"timestamp"`
	Detections []counting.Detection `json:"detections"`
}

// Replay reads a JSONL detection capture and submits each frame to the
// runner in file order. Malformed lines are skipped with a diagnostic.
// Returns the number of frames submitted.
func Replay(ctx context.Context, r *Runner, reader io.Reader) (int64, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var submitted int64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			monitoring.Logf("replay: line %d skipped: %v", lineNo, err)
			continue
		}

		// Frames without their own detection timestamps inherit the frame's.
		for i := range rec.Detections {
			if rec.Detections[i].Timestamp.IsZero() {
				rec.Detections[i].Timestamp = rec.Timestamp
			}
			if rec.Detections[i].FrameIndex == 0 {
				rec.Detections[i].FrameIndex = rec.FrameIndex
			}
		}

		err := r.Submit(ctx, Frame{
			Index:      rec.FrameIndex,
			Timestamp:  rec.Timestamp,
			Detections: rec.Detections,
		})
		if err != nil {
			return submitted, fmt.Errorf("replay: submit frame %d: %w", rec.FrameIndex, err)
		}
		submitted++
	}
	if err := scanner.Err(); err != nil {
		return submitted, fmt.Errorf("replay: read: %w", err)
	}
	return submitted, nil
}

// ReplayFile opens a JSONL capture file and replays it through the runner.
func ReplayFile(ctx context.Context, r *Runner, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()
	return Replay(ctx, r, f)
}
