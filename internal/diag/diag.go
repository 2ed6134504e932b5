// Package diag records whether the most recent crypto-library symbol
// resolution succeeded.
//
// A Channel belongs to exactly one operation and must not be shared
// between goroutines. Callers Set a record immediately before invoking a
// resolver-backed function and Get it immediately after, within the same
// synchronous call chain.
package diag

import "log/slog"

// Record is the outcome of one symbol resolution.
type Record struct {
	Resolved bool
	Missing  string
}

// OK is the record of a successful (or not yet attempted) resolution.
var OK = Record{Resolved: true}

// Missing returns the record for an unresolved symbol.
func Missing(name string) Record {
	return Record{Resolved: false, Missing: name}
}

// Channel holds the last record set by its owner.
type Channel struct {
	rec Record
	set bool
}

// Set stores rec as the latest record.
func (c *Channel) Set(rec Record) {
	if c == nil {
		return
	}
	c.rec = rec
	c.set = true
}

// Get returns the latest record, or OK if nothing was recorded.
func (c *Channel) Get() Record {
	if c == nil || !c.set {
		return OK
	}
	return c.rec
}

// Reset clears the channel.
func (c *Channel) Reset() {
	c.rec = Record{}
	c.set = false
}

// Check logs a diagnostic when rec reports a failed resolution and
// reports whether the resolution succeeded.
func Check(log *slog.Logger, rec Record, context string) bool {
	if rec.Resolved {
		return true
	}
	name := rec.Missing
	if name == "" {
		name = "(unknown)"
	}
	if context == "" {
		context = "operation"
	}
	if log != nil {
		log.Warn("missing crypto symbol", "symbol", name, "during", context)
	}
	return false
}
