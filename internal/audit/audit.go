// Package audit records security-relevant actions — logins, logouts, admin
// promotions/demotions, server credential changes — to the Store's
// audit_log table, asynchronously and without blocking the caller.
package audit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/store"
)

// Outcome values for an audit Event.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event describes one action to be recorded.
type Event struct {
	ActorID   string
	ActorName string
	Action    string
	Target    string
	Outcome   string
	Detail    string
	IPAddress string
}

// Logger buffers Events in memory and flushes them to Store in the
// background, so a slow or momentarily unavailable database never blocks
// a login or API request on the audit write.
type Logger struct {
	store    *store.Store
	events   chan Event
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLogger starts a Logger backed by st, with a bounded in-memory buffer
// of bufferSize events.
func NewLogger(st *store.Store, bufferSize int) *Logger {
	if bufferSize <= 0 {
		bufferSize = 500
	}
	l := &Logger{
		store:    st,
		events:   make(chan Event, bufferSize),
		stopChan: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Record queues an event for persistence. Non-blocking: if the buffer is
// full, the event is dropped and a warning is logged.
func (l *Logger) Record(e Event) {
	if l == nil {
		return
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	select {
	case l.events <- e:
	default:
		logging.Warn().Str("action", e.Action).Msg("audit log buffer full, event dropped")
	}
}

func (l *Logger) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopChan:
			l.drain()
			return
		case e := <-l.events:
			l.write(e)
		}
	}
}

func (l *Logger) drain() {
	for {
		select {
		case e := <-l.events:
			l.write(e)
		default:
			return
		}
	}
}

func (l *Logger) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.store.InsertAuditEvent(ctx, &store.AuditEvent{
		ActorID:   e.ActorID,
		ActorName: e.ActorName,
		Action:    e.Action,
		Target:    e.Target,
		Outcome:   e.Outcome,
		Detail:    e.Detail,
		IPAddress: e.IPAddress,
	})
	if err != nil {
		logging.Error().Err(err).Str("action", e.Action).Msg("failed to persist audit event")
	}
}

// Close stops the background writer, flushing any buffered events first.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

// Recent returns the most recent persisted events, newest first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]*store.AuditEvent, error) {
	return l.store.ListAuditEvents(ctx, limit)
}

// ClientIP extracts the originating client address from an HTTP request,
// preferring X-Forwarded-For's first hop when present.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for i, c := range forwarded {
			if c == ',' {
				return forwarded[:i]
			}
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
