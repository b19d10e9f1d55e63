package e2ee

import (
	"sync"
	"time"
)

// Epoch is a monotonically increasing version counter identifying one
// generation of key material across all participants. It never decreases
// for the lifetime of a session.
type Epoch uint64

// ParticipantKeyRecord holds one participant's cryptographic state. A
// record never outlives the participant's membership: it is purged
// synchronously with the leave event.
type ParticipantKeyRecord struct {
	ParticipantID  string
	PublicKey      []byte
	SharedSecret   []byte
	Algorithm      Algorithm
	Epoch          Epoch
	QuantumCapable bool
	LastRotatedAt  time.Time

	// Capabilities is the participant's declared capability metadata,
	// kept for re-keying.
	Capabilities Capabilities
}

// Stale reports whether the record predates the registry's current epoch.
// Stale records must never be used for new encryption operations.
func (r *ParticipantKeyRecord) Stale(current Epoch) bool {
	return r.Epoch < current
}

// zeroize wipes the shared secret in place.
func (r *ParticipantKeyRecord) zeroize() {
	for i := range r.SharedSecret {
		r.SharedSecret[i] = 0
	}
	r.SharedSecret = nil
}

// clone returns a deep copy safe to hand to readers.
func (r *ParticipantKeyRecord) clone() ParticipantKeyRecord {
	out := *r
	out.PublicKey = append([]byte(nil), r.PublicKey...)
	out.SharedSecret = append([]byte(nil), r.SharedSecret...)
	return out
}

// Registry maps participant identity to key state for one session.
//
// Writes follow single-writer discipline: only the Coordinator (covering
// both membership re-keys and scheduled rotations) mutates the registry.
// Reads for statistics may happen concurrently.
type Registry struct {
	mu      sync.RWMutex
	epoch   Epoch
	records map[string]*ParticipantKeyRecord
}

// NewRegistry creates an empty registry at epoch zero.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*ParticipantKeyRecord)}
}

// CurrentEpoch returns the registry's current epoch.
func (g *Registry) CurrentEpoch() Epoch {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.epoch
}

// AdvanceEpoch increments and returns the epoch. Called once per full
// re-key (membership change or scheduled rotation).
func (g *Registry) AdvanceEpoch() Epoch {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	return g.epoch
}

// Put inserts or replaces a participant's record. A replaced record's
// secret is zeroized.
func (g *Registry) Put(rec *ParticipantKeyRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.records[rec.ParticipantID]; ok && old != rec {
		old.zeroize()
	}
	g.records[rec.ParticipantID] = rec
}

// Get returns a copy of a participant's record.
func (g *Registry) Get(participantID string) (ParticipantKeyRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[participantID]
	if !ok {
		return ParticipantKeyRecord{}, false
	}
	return rec.clone(), true
}

// Remove purges a participant's record, zeroizing its secret. Returns true
// if a record was present.
func (g *Registry) Remove(participantID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[participantID]
	if !ok {
		return false
	}
	rec.zeroize()
	delete(g.records, participantID)
	return true
}

// Snapshot returns copies of all records, for re-keying and statistics.
func (g *Registry) Snapshot() []ParticipantKeyRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ParticipantKeyRecord, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, rec.clone())
	}
	return out
}

// Count returns the number of registered participants.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// QuantumCapableCount returns the number of participants with a
// post-quantum-secured link.
func (g *Registry) QuantumCapableCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, rec := range g.records {
		if rec.QuantumCapable {
			n++
		}
	}
	return n
}

// Clear purges all records, zeroizing secrets. Used at session teardown.
func (g *Registry) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, rec := range g.records {
		rec.zeroize()
		delete(g.records, id)
	}
}
