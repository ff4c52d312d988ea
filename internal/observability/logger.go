package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldSessionID is the field name for the client session ID.
	LogFieldSessionID = "session_id"
	// LogFieldConversationID is the field name for conversation ID.
	LogFieldConversationID = "conversation_id"
	// LogFieldMessageID is the field name for message ID.
	LogFieldMessageID = "message_id"
	// LogFieldEventType is the field name for stream event type.
	LogFieldEventType = "event_type"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
)

// NewLogger builds the process-wide slog logger. Dev mode logs human-readable
// text at debug level; prod logs JSON at info level.
func NewLogger(dev bool) *slog.Logger {
	var handler slog.Handler
	if dev {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}

// SessionContext carries structured logging state for one client session.
type SessionContext struct {
	SessionID string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewSessionContext creates a session context with a generated session ID.
func NewSessionContext(logger *slog.Logger) *SessionContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionContext{
		SessionID: uuid.New().String(),
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// WithFields returns a logger carrying the session fields plus attrs.
func (s *SessionContext) WithFields(attrs ...slog.Attr) *slog.Logger {
	combined := make([]any, 0, len(attrs)+1)
	combined = append(combined, slog.String(LogFieldSessionID, s.SessionID))
	for _, attr := range attrs {
		combined = append(combined, attr)
	}
	return s.Logger.With(combined...)
}

// Info logs an info message with the session fields attached.
func (s *SessionContext) Info(msg string, attrs ...slog.Attr) {
	s.log(slog.LevelInfo, msg, attrs...)
}

// Warn logs a warning message with the session fields attached.
func (s *SessionContext) Warn(msg string, attrs ...slog.Attr) {
	s.log(slog.LevelWarn, msg, attrs...)
}

// Error logs an error with the session fields attached.
func (s *SessionContext) Error(msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	s.log(slog.LevelError, msg, attrs...)
}

// Duration returns the elapsed time since the session started.
func (s *SessionContext) Duration() time.Duration {
	return time.Since(s.StartTime)
}

func (s *SessionContext) log(level slog.Level, msg string, attrs ...slog.Attr) {
	combined := make([]slog.Attr, 0, len(attrs)+1)
	combined = append(combined, slog.String(LogFieldSessionID, s.SessionID))
	combined = append(combined, attrs...)
	s.Logger.LogAttrs(context.Background(), level, msg, combined...)
}
