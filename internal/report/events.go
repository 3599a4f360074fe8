package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/prms-console/internal/util"
)

// EventType represents the type of event
type EventType string

const (
	EventMap          EventType = "map"
	EventIgnore       EventType = "ignore"
	EventRetarget     EventType = "retarget"
	EventRevert       EventType = "revert"
	EventSplitSave    EventType = "split_save"
	EventSplitDelete  EventType = "split_delete"
	EventMasterAdd    EventType = "master_add"
	EventMasterEdit   EventType = "master_edit"
	EventMasterRemove EventType = "master_remove"
	EventInvalidate   EventType = "analytics_invalidate"
	EventSoftWarning  EventType = "soft_warning"
	EventError        EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a flag value to a level, defaulting to info
func ParseLevel(s string) EventLevel {
	if _, ok := levelPriority[EventLevel(s)]; ok {
		return EventLevel(s)
	}
	return LevelInfo
}

// Event is one operator action or anomaly
type Event struct {
	Timestamp        time.Time         `json:"ts"`
	Level            EventLevel        `json:"level"`
	Event            EventType         `json:"event"`
	RecordID         int64             `json:"record_id,omitempty"`
	PharmacyID       string            `json:"pharmacy_id,omitempty"`
	MasterPharmacyID string            `json:"master_pharmacy_id,omitempty"`
	ProductKey       string            `json:"product_key,omitempty"`
	Reprocessed      int               `json:"invoices_reprocessed,omitempty"`
	Action           string            `json:"action,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	Duration         int64             `json:"duration_ms,omitempty"` // in milliseconds
	Kind             string            `json:"kind,omitempty"`
	Error            string            `json:"error,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// One file per console session
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// outcome fills the level and error of a mutation event
func outcome(e *Event, err error) *Event {
	e.Level = LevelInfo
	if err != nil {
		e.Level = LevelError
		e.Error = err.Error()
		e.Kind = string(util.KindOf(err))
	}
	return e
}

// LogMap logs mapping an unmatched record to a master pharmacy
func (l *EventLogger) LogMap(recordID int64, masterPharmacyID string, err error) error {
	return l.Log(outcome(&Event{
		Event:            EventMap,
		RecordID:         recordID,
		MasterPharmacyID: masterPharmacyID,
	}, err))
}

// LogIgnore logs ignoring an unmatched record
func (l *EventLogger) LogIgnore(recordID int64, err error) error {
	return l.Log(outcome(&Event{Event: EventIgnore, RecordID: recordID}, err))
}

// LogRetarget logs pointing a newly-mapped record at a different master pharmacy
func (l *EventLogger) LogRetarget(recordID int64, masterPharmacyID string, err error) error {
	return l.Log(outcome(&Event{
		Event:            EventRetarget,
		RecordID:         recordID,
		MasterPharmacyID: masterPharmacyID,
	}, err))
}

// LogRevert logs removing a mapping so the record returns to unmatched
func (l *EventLogger) LogRevert(recordID int64, err error) error {
	return l.Log(outcome(&Event{Event: EventRevert, RecordID: recordID}, err))
}

// LogSplitSave logs a split rule upsert
func (l *EventLogger) LogSplitSave(ruleID int64, pharmacyID, productKey string, reprocessed int, duration time.Duration, err error) error {
	return l.Log(outcome(&Event{
		Event:       EventSplitSave,
		RecordID:    ruleID,
		PharmacyID:  pharmacyID,
		ProductKey:  productKey,
		Reprocessed: reprocessed,
		Duration:    duration.Milliseconds(),
	}, err))
}

// LogSplitDelete logs a split rule deletion
func (l *EventLogger) LogSplitDelete(ruleID int64, productKey string, reprocessed int, err error) error {
	return l.Log(outcome(&Event{
		Event:       EventSplitDelete,
		RecordID:    ruleID,
		ProductKey:  productKey,
		Reprocessed: reprocessed,
	}, err))
}

// LogMasterAdd logs creating a master row
func (l *EventLogger) LogMasterAdd(rowID int64, pharmacyID string, err error) error {
	return l.Log(outcome(&Event{Event: EventMasterAdd, RecordID: rowID, PharmacyID: pharmacyID}, err))
}

// LogMasterEdit logs patching a master row
func (l *EventLogger) LogMasterEdit(rowID int64, fields []string, err error) error {
	e := &Event{Event: EventMasterEdit, RecordID: rowID}
	if len(fields) > 0 {
		e.Extra = map[string]string{"fields": fmt.Sprintf("%v", fields)}
	}
	return l.Log(outcome(e, err))
}

// LogMasterRemove logs deleting a master row
func (l *EventLogger) LogMasterRemove(rowID int64, err error) error {
	return l.Log(outcome(&Event{Event: EventMasterRemove, RecordID: rowID}, err))
}

// LogInvalidate logs an analytics invalidation and what caused it
func (l *EventLogger) LogInvalidate(reason string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventInvalidate,
		Reason: reason,
	})
}

// LogSoftWarning logs a post-success anomaly that did not roll anything back
func (l *EventLogger) LogSoftWarning(action string, err error) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventSoftWarning,
		Action: action,
		Kind:   string(util.KindSoftWarning),
		Error:  err.Error(),
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(action string, err error) error {
	return l.Log(outcome(&Event{Event: EventError, Action: action}, err))
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

// ReadEvents decodes a JSONL event log. Lines that fail to decode are skipped
// and counted.
func ReadEvents(path string) ([]Event, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return events, skipped, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, skipped, nil
}
