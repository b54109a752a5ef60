package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/averlon/instantagent/internal/config"
)

// ConversationLogEvent is one NDJSON record in a conversation log.
// ContentRaw preserves the payload exactly as it crossed the wire;
// Content is the cleaned, human-readable form.
type ConversationLogEvent struct {
	EventID    string         `json:"event_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Identity   string         `json:"identity"`
	AgentID    string         `json:"agent_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger appends chat traffic to per-agent NDJSON files,
// one directory per identity, plus an optional global file. Writes
// happen on a single background goroutine fed by a bounded queue;
// when the queue is full the event is dropped rather than blocking a
// delivery.
type ConversationLogger struct {
	cfg    config.ConversationLogConfig
	logger *slog.Logger

	queue chan ConversationLogEvent
	done  chan struct{}

	closeOnce sync.Once
}

func NewConversationLogger(cfg config.ConversationLogConfig, logger *slog.Logger) (*ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return &ConversationLogger{cfg: cfg, logger: logger}, nil
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create global conversation log dir: %w", err)
		}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	cl := &ConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, queueSize),
		done:   make(chan struct{}),
	}
	go cl.run()
	return cl, nil
}

// Log enqueues an event for writing. Never blocks; a full queue drops
// the event with a warning.
func (cl *ConversationLogger) Log(event ConversationLogEvent) {
	if cl.queue == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	select {
	case cl.queue <- event:
	default:
		cl.logger.Warn("conversation log queue full, dropping event",
			"identity", event.Identity, "agent_id", event.AgentID, "event_type", event.EventType)
	}
}

// Close drains the queue and stops the writer goroutine.
func (cl *ConversationLogger) Close() error {
	if cl.queue == nil {
		return nil
	}
	cl.closeOnce.Do(func() {
		close(cl.queue)
		<-cl.done
	})
	return nil
}

func (cl *ConversationLogger) run() {
	defer close(cl.done)
	for event := range cl.queue {
		cl.write(event)
	}
}

func (cl *ConversationLogger) write(event ConversationLogEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		cl.logger.Warn("failed to marshal conversation log event", "error", err)
		return
	}
	line = append(line, '\n')

	if cl.cfg.Enabled {
		dir := filepath.Join(cl.cfg.Dir, sanitizePathComponent(event.Identity))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cl.logger.Warn("failed to create conversation log dir", "dir", dir, "error", err)
		} else {
			path := filepath.Join(dir, sanitizePathComponent(event.AgentID)+".ndjson")
			cl.appendLine(path, line)
		}
	}
	if cl.cfg.GlobalEnabled {
		cl.appendLine(cl.cfg.GlobalPath, line)
	}
}

func (cl *ConversationLogger) appendLine(path string, line []byte) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		cl.logger.Warn("failed to open conversation log file", "path", path, "error", err)
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(line); err != nil {
		cl.logger.Warn("failed to write conversation log line", "path", path, "error", err)
	}
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// cleanForReadability strips terminal escape sequences and control
// characters so the Content field reads as plain text.
func cleanForReadability(raw string) string {
	clean := ansiEscape.ReplaceAllString(raw, "")
	clean = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, clean)
	return strings.TrimSpace(clean)
}

// sanitizePathComponent makes a user-supplied value safe to use as a
// file or directory name. Identities are self-declared display names,
// never trusted as paths.
func sanitizePathComponent(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}
