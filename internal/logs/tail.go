package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	scanBufferSize  = 64 * 1024
	maxLineSize     = 1024 * 1024
	defaultInterval = 250 * time.Millisecond
)

// Last returns up to limit trailing lines of path and the offset of the end
// of the file. A missing file yields no lines and offset zero.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// Follow emits lines appended to path after offset until ctx is done. A
// non-positive interval uses the default polling cadence.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// readFrom emits complete lines after offset and returns the new offset.
// The offset resets when the file shrinks below it.
func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, scanBufferSize)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// Partial line: leave it for the next poll.
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(trimNewline(line))
	}
}

func scanLines(r io.ReadSeeker, fn func(string)) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return offset, nil
}

func trimNewline(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
	}
	return line
}
