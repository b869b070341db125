package detect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"harp/internal/fileutil"
)

// reportedOutputs is the JSON object a pipeline may print as its final
// stdout line.
type reportedOutputs struct {
	CSVPath   string `json:"csv_path"`
	VideoPath string `json:"video_path"`
}

// parseReported inspects the last non-empty stdout line. ok is false when the
// line is not a JSON object naming at least one output.
func parseReported(stdout string) (reportedOutputs, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(last, "{") {
		return reportedOutputs{}, false
	}
	var out reportedOutputs
	if err := json.Unmarshal([]byte(last), &out); err != nil {
		return reportedOutputs{}, false
	}
	if out.CSVPath == "" && out.VideoPath == "" {
		return reportedOutputs{}, false
	}
	return out, true
}

// resolveReported makes reported paths absolute relative to the output dir.
func resolveReported(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// firstWithExt returns the lexically first regular file in dir with ext.
func firstWithExt(dir, ext string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0])
}

// countRows returns the number of data lines in a CSV, excluding the header.
func countRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open predictions: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read predictions: %w", err)
	}
	return max(lines-1, 0), nil
}

func requireOutputs(tool, csvPath, videoPath string) error {
	if csvPath == "" || !fileutil.IsRegularFile(csvPath) {
		return &ToolError{Tool: tool, Message: "predictions CSV was not produced"}
	}
	if videoPath == "" || !fileutil.IsRegularFile(videoPath) {
		return &ToolError{Tool: tool, Message: "annotated video was not produced"}
	}
	return nil
}
