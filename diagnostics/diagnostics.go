package diagnostics

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	mutex   = &sync.Mutex{}
	history []Event
	logFile *os.File
)

func Init() {
	// Create log file with current timestamp
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join("logs", fmt.Sprintf("diagnostics_%s.log", timestamp))

	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
		return
	}

	var err error
	logFile, err = os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Failed to open diagnostics log file: %v", err)
		return
	}

	logFile.WriteString(fmt.Sprintf("=== Diagnostics Log Started at %s ===\n", time.Now().Format("2006-01-02 15:04:05")))
}

// Record appends the event to the in-memory history, writes it to the
// diagnostics log file and forwards it to all connected websocket clients.
func Record(event Event) {
	mutex.Lock()
	history = append(history, event)
	mutex.Unlock()

	broadcast(event)

	if logFile == nil {
		return
	}

	// Format: [timestamp] LEVEL source: message
	logLine := fmt.Sprintf("[%s] %s %s: %s\n",
		event.Timestamp.Format("2006-01-02 15:04:05"),
		strings.ToUpper(event.Level),
		event.Source,
		event.Message)

	mutex.Lock()
	defer mutex.Unlock()
	if _, err := logFile.WriteString(logLine); err != nil {
		log.Printf("Failed to write to diagnostics log file: %v", err)
	}
}

// Recent returns the most recent events (last 50)
func Recent() []Event {
	mutex.Lock()
	defer mutex.Unlock()

	start := 0
	if len(history) > 50 {
		start = len(history) - 50
	}
	return history[start:]
}

// Recorder is a Sink writing every event into the shared history and log file
type Recorder struct{}

func (Recorder) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	Record(event)
}

// Collector is a Sink that keeps events in memory, used to hand the
// diagnostics of one pipeline run back to the caller.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Events returns a copy of all collected events
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Messages returns the collected message strings in emission order
func (c *Collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]string, 0, len(c.events))
	for _, event := range c.events {
		messages = append(messages, event.Message)
	}
	return messages
}

// HasBackup reports whether any collected event flags a backup value
func (c *Collector) HasBackup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, event := range c.events {
		if strings.Contains(event.Message, "BACKUP") {
			return true
		}
	}
	return false
}

// Multi fans one event out to several sinks
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(event Event) {
		for _, sink := range sinks {
			if sink != nil {
				sink.Emit(event)
			}
		}
	})
}

// Discard is a Sink that drops all events
var Discard = SinkFunc(func(Event) {})

// Warningf emits a formatted warning event to the sink
func Warningf(sink Sink, source, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink.Emit(Event{
		Level:     "warning",
		Source:    source,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}

// Infof emits a formatted info event to the sink
func Infof(sink Sink, source, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink.Emit(Event{
		Level:     "info",
		Source:    source,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}
