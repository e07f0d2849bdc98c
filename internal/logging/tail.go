package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed log line from a log file. Lines that are not
// valid slog JSON (panics, stray prints) are kept with Raw set and the
// zero Time, so nothing a postmortem might need is filtered out.
type Entry struct {
	Time   time.Time
	Level  string
	Msg    string
	Source string // "server" or "index", from the file the line came from
	Attrs  map[string]any
	Raw    string
}

// followPollInterval is how often Follow re-stats its files for growth.
const followPollInterval = 500 * time.Millisecond

// Tail reads the last n entries across the given log files, merged by
// timestamp. Files that do not exist yet are skipped, so tailing before
// the first run simply returns nothing.
func Tail(paths []string, n int) ([]Entry, error) {
	var all []Entry
	for _, path := range paths {
		lines, err := lastLines(path, n)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		src := sourceOf(path)
		for _, line := range lines {
			all = append(all, parseEntry(line, src))
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Follow watches the given log files for appended lines, invoking send
// for each new entry until ctx is cancelled. It polls file sizes rather
// than using inotify: two small files at a half-second cadence do not
// justify a watcher dependency, and polling survives the log file being
// rolled out from underneath it.
func Follow(ctx context.Context, paths []string, send func(Entry)) error {
	offsets := make(map[string]int64, len(paths))
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			offsets[path] = info.Size()
		}
	}

	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			size := info.Size()
			from := offsets[path]
			if size < from {
				// The file was rolled; start over from the top.
				from = 0
			}
			if size == from {
				continue
			}
			lines, err := readFrom(path, from)
			if err != nil {
				continue
			}
			offsets[path] = size
			src := sourceOf(path)
			for _, line := range lines {
				send(parseEntry(line, src))
			}
		}
	}
}

// Format renders an entry as one human-readable line.
func (e Entry) Format() string {
	if e.Time.IsZero() && e.Msg == "" {
		return fmt.Sprintf("[%s] %s", e.Source, e.Raw)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s [%s] %s", e.Time.Format("15:04:05"), strings.ToUpper(e.Level), e.Source, e.Msg)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

// MatchesLevel reports whether the entry is at or above min.
func (e Entry) MatchesLevel(min string) bool {
	return levelRank(e.Level) >= levelRank(min)
}

func levelRank(level string) int {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return 0
	case "WARN":
		return 2
	case "ERROR":
		return 3
	default:
		return 1
	}
}

// sourceOf labels entries by the file they came from: "server.log"
// yields "server", "index.log" yields "index".
func sourceOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".log")
}

func parseEntry(line, source string) Entry {
	var rec struct {
		Time  time.Time `json:"time"`
		Level string    `json:"level"`
		Msg   string    `json:"msg"`
	}
	if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Msg == "" {
		return Entry{Source: source, Raw: line}
	}

	var attrs map[string]any
	_ = json.Unmarshal([]byte(line), &attrs)
	delete(attrs, "time")
	delete(attrs, "level")
	delete(attrs, "msg")

	return Entry{
		Time:   rec.Time,
		Level:  rec.Level,
		Msg:    rec.Msg,
		Source: source,
		Attrs:  attrs,
		Raw:    line,
	}
}

func lastLines(path string, n int) ([]string, error) {
	lines, err := readFrom(path, 0)
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func readFrom(path string, offset int64) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, err
		}
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
