package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventSink receives structured copies of session log messages, for callers
// that want to forward them somewhere besides the log file.
type EventSink interface {
	Emit(sessionID, level, message string)
}

// SessionLogger manages the per-session log file for a single resolution
// session. Every comparison run, conflict decision, and generated script is
// appended to it so an operator can audit what the tool did afterwards.
type SessionLogger struct {
	sessionID string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
	sink      EventSink
}

// SetEventSink attaches an optional sink that mirrors log messages.
func (s *SessionLogger) SetEventSink(sink EventSink) {
	if s == nil {
		return
	}
	s.mutex.Lock()
	s.sink = sink
	s.mutex.Unlock()
}

// StartSessionLogging creates a log file for the given session under dir.
// The file name includes a timestamp so repeated runs never clobber each
// other.
func StartSessionLogging(dir, sessionID string) (*SessionLogger, error) {
	if dir == "" {
		dir = "session_logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(dir, fmt.Sprintf("session_%s_%s.log", sessionID, timestamp))

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	sl := &SessionLogger{
		sessionID: sessionID,
		logFile:   logFile,
		startTime: time.Now(),
	}
	sl.writeHeader()
	return sl, nil
}

// Log writes a timestamped message to the session log.
func (s *SessionLogger) Log(format string, args ...interface{}) {
	if s == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.logFile == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(s.startTime).Round(time.Millisecond)
	logMessage := fmt.Sprintf(format, args...)
	s.logFile.WriteString(fmt.Sprintf("[%s] [+%v] %s\n", timestamp, elapsed, logMessage))
	s.logFile.Sync()

	if s.sink != nil {
		s.sink.Emit(s.sessionID, levelFor(logMessage), logMessage)
	}
}

// levelFor classifies a log message by its content.
func levelFor(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
		return "error"
	case strings.Contains(lower, "warning") || strings.Contains(lower, "retry"):
		return "warn"
	default:
		return "info"
	}
}

// LogSection writes a visually separated section header.
func (s *SessionLogger) LogSection(title string) {
	if s == nil {
		return
	}

	separator := strings.Repeat("=", 80)
	s.Log("%s", separator)
	s.Log("= %s", title)
	s.Log("%s", separator)
}

// LogConflict records a detected conflict with its classification.
func (s *SessionLogger) LogConflict(conflictID, subType, severity, description string) {
	s.Log("CONFLICT %s [%s/%s]: %s", conflictID, subType, severity, description)
}

// LogResolution records a resolution decision for a conflict.
func (s *SessionLogger) LogResolution(conflictID, strategyID, decision string) {
	s.Log("RESOLUTION for %s: strategy=%s decision=%s", conflictID, strategyID, decision)
}

// LogScript appends a generated script verbatim, framed so it is easy to
// locate in the log.
func (s *SessionLogger) LogScript(script string) {
	if s == nil {
		return
	}

	s.LogSection("GENERATED SCRIPT")
	s.mutex.Lock()
	if s.logFile != nil {
		s.logFile.WriteString(script)
		if !strings.HasSuffix(script, "\n") {
			s.logFile.WriteString("\n")
		}
		s.logFile.Sync()
	}
	s.mutex.Unlock()
	s.Log("--- SCRIPT END ---")
}

// LogError records an error with its surrounding context.
func (s *SessionLogger) LogError(where string, err error) {
	s.Log("ERROR in %s: %v", where, err)
}

// Close finalizes and closes the session log file.
func (s *SessionLogger) Close() {
	if s == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.logFile == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(s.startTime).Round(time.Millisecond)
	s.logFile.WriteString(fmt.Sprintf("[%s] [+%v] Session logging completed. Total duration: %v\n",
		timestamp, elapsed, elapsed))
	s.logFile.Sync()
	s.logFile.Close()
	s.logFile = nil
}

func (s *SessionLogger) writeHeader() {
	header := fmt.Sprintf(`SCHEMASYNC RESOLUTION SESSION LOG
Session ID: %s
Start Time: %s
Log Format: [HH:MM:SS.mmm] [+duration] message

`, s.sessionID, s.startTime.Format("2006-01-02 15:04:05"))

	s.logFile.WriteString(header)
	s.logFile.Sync()
}
