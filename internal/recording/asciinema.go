// Package recording writes terminal sessions as asciinema v2 casts.
package recording

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event codes defined by asciicast v2.
const (
	EventOutput = "o"
	EventInput  = "i"
	EventResize = "r"
)

// Header is the first line of an asciicast v2 file.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Command   string            `json:"command,omitempty"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is a single asciicast line: [time_offset, event_type, data].
type Event struct {
	TimeOffset float64
	Type       string
	Data       string
}

// MarshalJSON encodes the event as a three element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.Type, e.Data})
}

// UnmarshalJSON decodes a three element array.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	var ok bool
	if e.TimeOffset, ok = arr[0].(float64); !ok {
		return fmt.Errorf("invalid time offset type")
	}
	if e.Type, ok = arr[1].(string); !ok {
		return fmt.Errorf("invalid event type")
	}
	if e.Data, ok = arr[2].(string); !ok {
		return fmt.Errorf("invalid event data type")
	}
	return nil
}

// Recorder appends asciicast events for one session. Writes after Close
// are dropped.
type Recorder struct {
	mu        sync.Mutex
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	closed    bool
}

// Create opens <dir>/<sessionID>.cast for writing.
func Create(dir, sessionID string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	file, err := os.Create(filepath.Join(dir, sessionID+".cast"))
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return &Recorder{writer: file, file: file, startTime: time.Now()}, nil
}

// NewWithWriter creates a Recorder on top of w. The caller owns w.
func NewWithWriter(w io.Writer) *Recorder {
	return &Recorder{writer: w, startTime: time.Now()}
}

// Path returns the file path, or "" when writing to a caller supplied writer.
func (r *Recorder) Path() string {
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// WriteHeader writes the header line. Call it once before any event.
func (r *Recorder) WriteHeader(h Header) error {
	h.Version = 2
	if h.Timestamp == 0 {
		h.Timestamp = r.startTime.Unix()
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	return r.writeLine(data)
}

// WriteOutput records bytes produced by the session.
func (r *Recorder) WriteOutput(data []byte) error {
	return r.writeEvent(EventOutput, string(data))
}

// WriteInput records bytes written to the session.
func (r *Recorder) WriteInput(data []byte) error {
	return r.writeEvent(EventInput, string(data))
}

// WriteResize records a window size change as "COLSxROWS".
func (r *Recorder) WriteResize(cols, rows uint16) error {
	return r.writeEvent(EventResize, fmt.Sprintf("%dx%d", cols, rows))
}

func (r *Recorder) writeEvent(eventType, data string) error {
	ev := Event{
		TimeOffset: time.Since(r.startTime).Seconds(),
		Type:       eventType,
		Data:       data,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.writeLine(line)
}

func (r *Recorder) writeLine(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if _, err := r.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return nil
}

// Close closes the underlying file if the recorder owns it.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
