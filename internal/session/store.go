package session

import (
	"errors"
	"log"
	"sort"
	"sync"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Runner is the control surface the store needs from an orchestrator.
// Stop must be idempotent.
type Runner interface {
	Stop()
}

// Store is the concurrent registry mapping session id to its session and
// orchestrator. One coarse lock guards the index; sessions guard their own
// mutation, so operations here stay short.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	runners  map[string]Runner
	snap     Snapshotter
	logger   *log.Logger
}

// NewStore builds an empty registry. The snapshotter is optional.
func NewStore(snap Snapshotter, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return &Store{
		sessions: make(map[string]*Session),
		runners:  make(map[string]Runner),
		snap:     snap,
		logger:   logger,
	}
}

// Create registers a new session.
func (st *Store) Create(sess *Session) {
	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()
	st.persist(sess)
}

// Get returns the live session for mutation by its owner.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns snapshots of every session ordered by creation time.
func (st *Store) List() []Session {
	st.mu.Lock()
	live := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		live = append(live, s)
	}
	st.mu.Unlock()

	out := make([]Session, 0, len(live))
	for _, s := range live {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AttachOrchestrator binds a runner to a session id. Attaching over an
// existing runner stops the old one first so no background loop is orphaned.
func (st *Store) AttachOrchestrator(id string, r Runner) error {
	st.mu.Lock()
	if _, ok := st.sessions[id]; !ok {
		st.mu.Unlock()
		return ErrNotFound
	}
	prev := st.runners[id]
	st.runners[id] = r
	st.mu.Unlock()

	if prev != nil {
		st.logger.Printf("replacing orchestrator for session %s", id)
		prev.Stop()
	}
	return nil
}

// Orchestrator returns the runner bound to a session, if any.
func (st *Store) Orchestrator(id string) (Runner, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.runners[id]
	return r, ok
}

// Delete stops the session's orchestrator, then removes both records.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return ErrNotFound
	}
	r := st.runners[id]
	delete(st.sessions, id)
	delete(st.runners, id)
	st.mu.Unlock()

	if r != nil {
		r.Stop()
	}
	if st.snap != nil {
		if err := st.snap.Delete(sess.ID); err != nil {
			st.logger.Printf("snapshot delete for session %s: %v", sess.ID, err)
		}
	}
	return nil
}

// Persist pushes the session's current state to the snapshotter, if one is
// configured. Snapshot failures are logged, never surfaced: persistence is an
// extension, not part of the lifecycle contract.
func (st *Store) Persist(id string) {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		st.persist(sess)
	}
}

func (st *Store) persist(sess *Session) {
	if st.snap == nil {
		return
	}
	if err := st.snap.Save(sess); err != nil {
		st.logger.Printf("snapshot save for session %s: %v", sess.ID, err)
	}
}
