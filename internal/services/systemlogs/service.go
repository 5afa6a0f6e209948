package systemlogs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// ErrLogNotFound is returned for a file outside the logs directory listing
var ErrLogNotFound = errors.New("log file not found")

// Service reads the files written by the arbor file writer. Credential
// values never reach these files; capture lines carry fingerprints only.
type Service struct {
	logsDir string
	logger  arbor.ILogger
	now     func() time.Time
}

func NewService(logsDir string, logger arbor.ILogger) *Service {
	return &Service{
		logsDir: logsDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Dir returns the directory being served
func (s *Service) Dir() string {
	return s.logsDir
}

// ListLogFiles returns the .log files in the logs directory, newest first.
// A missing directory yields an empty list.
func (s *Service) ListLogFiles() ([]LogFile, error) {
	entries, err := os.ReadDir(s.logsDir)
	if errors.Is(err, os.ErrNotExist) {
		return []LogFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	files := []LogFile{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFile{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

// Tail returns the last q.Limit lines of filename that pass the filters,
// oldest first. Memory stays bounded by the limit.
func (s *Service) Tail(filename string, q Query) ([]LogEntry, error) {
	name := filepath.Base(filename)
	if name != filename || !strings.HasSuffix(name, ".log") {
		return nil, fmt.Errorf("%w: %s", ErrLogNotFound, filename)
	}

	file, err := os.Open(filepath.Join(s.logsDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLogNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	levels := make(map[string]bool, len(q.Levels))
	for _, l := range q.Levels {
		levels[shortLevel(l)] = true
	}

	ring := make([]LogEntry, limit)
	count := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if q.Contains != "" && !strings.Contains(line, q.Contains) {
			continue
		}
		entry := s.parseLine(line)
		if len(levels) > 0 && !levels[entry.Level] {
			continue
		}
		ring[count%limit] = entry
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	if count <= limit {
		return ring[:count], nil
	}
	start := count % limit
	return append(append([]LogEntry{}, ring[start:]...), ring[:start]...), nil
}

// parseLine understands arbor's JSON and logfmt file lines and the
// "15:04:05 INF > message" console form
func (s *Service) parseLine(line string) LogEntry {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err == nil {
		entry := LogEntry{Raw: line, Level: "INF"}
		if lvl, ok := fields["level"].(string); ok {
			entry.Level = shortLevel(lvl)
		}
		if msg, ok := fields["message"].(string); ok {
			entry.Message = msg
		}
		if ts, ok := fields["time"].(string); ok {
			entry.Timestamp = s.parseTime(ts)
		}
		return entry
	}

	if strings.HasPrefix(line, "time=") || strings.HasPrefix(line, "level=") {
		return s.parseLogfmt(line)
	}

	parts := strings.Fields(line)
	if len(parts) >= 3 && parts[2] == ">" {
		message := ""
		if idx := strings.Index(line, ">"); idx+1 < len(line) {
			message = strings.TrimSpace(line[idx+1:])
		}
		return LogEntry{
			Raw:       line,
			Level:     shortLevel(parts[1]),
			Message:   message,
			Timestamp: s.parseTime(parts[0]),
		}
	}

	return LogEntry{Raw: line, Level: "INF", Message: line}
}

// parseLogfmt reads the time, level and quoted message keys of a
// `time=... level=INF message="..." key=value` line
func (s *Service) parseLogfmt(line string) LogEntry {
	entry := LogEntry{Raw: line, Level: "INF"}
	rest := line
	for rest != "" {
		rest = strings.TrimLeft(rest, " ")
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			break
		}
		key := rest[:eq]
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				break
			}
			rest = rest[len(quoted):]
			if value, err = strconv.Unquote(quoted); err != nil {
				value = quoted
			}
		} else {
			end := strings.IndexByte(rest, ' ')
			if end < 0 {
				end = len(rest)
			}
			value, rest = rest[:end], rest[end:]
		}

		switch key {
		case "time":
			entry.Timestamp = s.parseTime(value)
		case "level":
			entry.Level = shortLevel(value)
		case "message":
			entry.Message = value
		}
	}
	return entry
}

// parseTime accepts RFC3339 or a clock time, which is placed on today's date
func (s *Service) parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse("15:04:05", value); err == nil {
		now := s.now()
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
	}
	return time.Time{}
}

// shortLevel maps level names onto arbor's three-letter codes
func shortLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "INFO", "INF":
		return "INF"
	case "WARN", "WARNING", "WRN":
		return "WRN"
	case "ERROR", "ERR":
		return "ERR"
	case "DEBUG", "DBG":
		return "DBG"
	case "TRACE", "TRC":
		return "TRC"
	case "FATAL", "FTL":
		return "FTL"
	default:
		return "INF"
	}
}
