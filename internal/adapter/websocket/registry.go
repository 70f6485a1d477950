package websocket

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

// Sink receives encoded frames for one live connection.
type Sink interface {
	Send(frame []byte) error
	Close(reason string)
}

type registryEntry struct {
	conn domain.Connection
	sink Sink
}

// Registry tracks the live connections of this relay instance.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]registryEntry
	bySession map[uuid.UUID]map[string]struct{}
	staff     map[string]struct{}
	seq       atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]registryEntry),
		bySession: make(map[uuid.UUID]map[string]struct{}),
		staff:     make(map[string]struct{}),
	}
}

// Register stores conn and returns its generated ID, formatted as
// <participant>-<unix millis>-<sequence>.
func (r *Registry) Register(conn domain.Connection, sink Sink) string {
	id := fmt.Sprintf("%s-%d-%d", conn.ParticipantID, conn.ConnectedAt.UnixMilli(), r.seq.Add(1))
	conn.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = registryEntry{conn: conn, sink: sink}
	if conn.Role.Staff() {
		r.staff[id] = struct{}{}
	} else {
		if r.bySession[conn.SessionID] == nil {
			r.bySession[conn.SessionID] = make(map[string]struct{})
		}
		r.bySession[conn.SessionID][id] = struct{}{}
	}
	return id
}

// Unregister removes the connection. Unknown IDs are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	delete(r.staff, id)
	if ids := r.bySession[entry.conn.SessionID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.bySession, entry.conn.SessionID)
		}
	}
}

func (r *Registry) ListBySession(sessionID uuid.UUID) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Connection, 0, len(r.bySession[sessionID]))
	for id := range r.bySession[sessionID] {
		out = append(out, r.conns[id].conn)
	}
	return out
}

func (r *Registry) ListStaff() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Connection, 0, len(r.staff))
	for id := range r.staff {
		out = append(out, r.conns[id].conn)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SendToSession delivers frame to every connection of the session and
// returns how many sinks accepted it.
func (r *Registry) SendToSession(sessionID uuid.UUID, frame []byte) int {
	return deliver(r.sessionTargets(sessionID), frame)
}

// SendToStaff delivers frame to every moderator and broadcaster connection.
func (r *Registry) SendToStaff(frame []byte) int {
	return deliver(r.staffTargets(nil), frame)
}

// SendToModerators delivers frame to moderator connections only. Pending
// listener traffic goes through here so broadcasters never see it.
func (r *Registry) SendToModerators(frame []byte) int {
	return deliver(r.staffTargets(func(role domain.Role) bool { return role == domain.RoleModerator }), frame)
}

// CloseSession closes every connection of the session with reason.
func (r *Registry) CloseSession(sessionID uuid.UUID, reason string) int {
	targets := r.sessionTargets(sessionID)
	for _, t := range targets {
		t.sink.Close(reason)
	}
	return len(targets)
}

// CloseAll closes every registered connection.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	targets := make([]registryEntry, 0, len(r.conns))
	for _, e := range r.conns {
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	for _, t := range targets {
		t.sink.Close(reason)
	}
}

func (r *Registry) sessionTargets(sessionID uuid.UUID) []registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.bySession[sessionID])
}

// staffTargets returns the staff entries whose role satisfies keep, or all
// of them when keep is nil.
func (r *Registry) staffTargets(keep func(domain.Role) bool) []registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.collect(r.staff)
	if keep == nil {
		return out
	}
	return slices.DeleteFunc(out, func(e registryEntry) bool { return !keep(e.conn.Role) })
}

// collect copies the entries named by ids so sinks are invoked without
// holding the lock. Callers hold r.mu.
func (r *Registry) collect(ids map[string]struct{}) []registryEntry {
	out := make([]registryEntry, 0, len(ids))
	for id := range ids {
		if e, ok := r.conns[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func deliver(targets []registryEntry, frame []byte) int {
	delivered := 0
	for _, t := range targets {
		if err := t.sink.Send(frame); err != nil {
			slog.Warn("Dropping frame for connection", "connection_id", t.conn.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
