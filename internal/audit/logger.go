package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation names a custodian operation or a key change made through
// keylessctl.
type Operation string

const (
	OpSign      Operation = "Sign"
	OpDecrypt   Operation = "Decrypt"
	OpPublicKey Operation = "PublicKey"

	OpImport     Operation = "Import"
	OpGenerate   Operation = "Generate"
	OpActivate   Operation = "Activate"
	OpDeactivate Operation = "Deactivate"
	OpDelete     Operation = "Delete"
)

const (
	StatusOK     = "OK"
	StatusDenied = "DENIED"
	StatusError  = "ERROR"
)

// DefaultRetention is how many entries Query can see by default.
const DefaultRetention = 10000

// Entry represents an audit log entry.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Operation   Operation         `json:"operation"`
	KeyID       string            `json:"key_id,omitempty"`
	Algorithm   string            `json:"algorithm,omitempty"`
	Status      string            `json:"status"`
	PeerAddress string            `json:"peer_address,omitempty"`
	Duration    time.Duration     `json:"duration_ns,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Subscriber receives audit entries via a channel.
type Subscriber struct {
	C  chan Entry
	id string
}

// Logger is an async audit logger that decouples the critical path from log writes.
type Logger struct {
	entries chan Entry
	out     io.Writer

	// sendMu guards closed against Log racing Close.
	sendMu sync.RWMutex
	closed bool

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	store       []Entry
	retention   int

	done chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithRetention bounds the entries kept for Query. Oldest entries are
// discarded first.
func WithRetention(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.retention = n
		}
	}
}

// NewLogger creates a logger with the given buffer size and output writer.
// Entries are written to out as JSON lines; out may be nil.
func NewLogger(bufferSize int, out io.Writer, opts ...Option) *Logger {
	l := &Logger{
		entries:     make(chan Entry, bufferSize),
		out:         out,
		subscribers: make(map[string]*Subscriber),
		retention:   DefaultRetention,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.processLoop()
	return l
}

// Log sends an entry to the async processing pipeline. It never blocks:
// when the buffer is full, or the logger is closed, the entry is dropped.
// ID and Timestamp are filled in when empty.
func (l *Logger) Log(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.entries <- e:
	default:
		slog.Warn("audit log buffer full, dropping entry", "operation", e.Operation, "key_id", e.KeyID)
	}
}

// Subscribe creates a new subscriber that receives entries via a buffered channel.
// Slow subscribers miss entries.
func (l *Logger) Subscribe() *Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscriber{
		C:  make(chan Entry, 64),
		id: uuid.NewString(),
	}
	l.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (l *Logger) Unsubscribe(sub *Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subscribers[sub.id]; !ok {
		return
	}
	delete(l.subscribers, sub.id)
	close(sub.C)
}

// Query returns retained entries, newest first, for the given key id and
// operation. Empty filters match everything; limit <= 0 means no limit.
func (l *Logger) Query(keyID string, op Operation, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for i := len(l.store) - 1; i >= 0; i-- {
		e := l.store[i]
		if keyID != "" && e.KeyID != keyID {
			continue
		}
		if op != "" && e.Operation != op {
			continue
		}
		results = append(results, e)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

// Close stops accepting entries, drains the buffer and closes every
// subscriber. It is safe to call more than once.
func (l *Logger) Close() {
	l.sendMu.Lock()
	if !l.closed {
		l.closed = true
		close(l.entries)
	}
	l.sendMu.Unlock()
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, sub := range l.subscribers {
		delete(l.subscribers, id)
		close(sub.C)
	}
}

func (l *Logger) processLoop() {
	defer close(l.done)

	for entry := range l.entries {
		l.mu.Lock()
		l.store = append(l.store, entry)
		if over := len(l.store) - l.retention; over > 0 {
			l.store = append(l.store[:0], l.store[over:]...)
		}
		l.mu.Unlock()

		if l.out != nil {
			data, err := json.Marshal(entry)
			if err != nil {
				slog.Error("audit marshal", "error", err)
				continue
			}
			fmt.Fprintf(l.out, "%s\n", data)
		}

		// Fan-out to subscribers (non-blocking)
		l.mu.RLock()
		for _, sub := range l.subscribers {
			select {
			case sub.C <- entry:
			default:
			}
		}
		l.mu.RUnlock()
	}
}
