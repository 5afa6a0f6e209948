package systemlogs

import "time"

// LogEntry is one parsed line of the service log
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogFile is a log file on disk
type LogFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Query selects the tail of a log file
type Query struct {
	Limit    int      // last N matching lines, <= 0 means DefaultLimit
	Levels   []string // "info", "warn", "WRN", ...; empty keeps all
	Contains string   // substring match on the raw line, e.g. a key or fingerprint
}

// DefaultLimit bounds a tail when the caller gives none
const DefaultLimit = 500
