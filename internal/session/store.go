package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"course-rag/internal/models"
)

// Store keeps a bounded, in-memory conversation history per session id.
// Sessions are created lazily and live for the lifetime of the process.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxMessages int
}

type session struct {
	mu      sync.Mutex
	cond    *sync.Cond
	history []models.Message
	// turns commit strictly in the order they began
	next    uint64
	current uint64
	aborted map[uint64]bool
}

// New creates a store that keeps at most maxPairs user/assistant pairs per
// session.
func New(maxPairs int) *Store {
	if maxPairs < 0 {
		maxPairs = 0
	}
	return &Store{
		sessions:    map[string]*session{},
		maxMessages: 2 * maxPairs,
	}
}

// NewID returns a fresh opaque session id.
func NewID() string {
	return uuid.NewString()
}

// MaxMessages is the history cap in individual messages.
func (s *Store) MaxMessages() int {
	return s.maxMessages
}

func (s *Store) get(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; ok {
		return sess
	}
	sess = &session{aborted: map[uint64]bool{}}
	sess.cond = sync.NewCond(&sess.mu)
	s.sessions[id] = sess
	return sess
}

// Get returns a copy of the session history, creating the session if needed.
func (s *Store) Get(id string) []models.Message {
	sess := s.get(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]models.Message(nil), sess.history...)
}

// Append adds one completed turn. It waits for turns that began earlier.
func (s *Store) Append(id, user, assistant string) {
	s.Begin(id).Commit(user, assistant)
}

// Begin snapshots the history for a new turn and reserves its commit slot.
// The caller must Commit or Abort the turn.
func (s *Store) Begin(id string) *Turn {
	sess := s.get(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t := &Turn{
		store:   s,
		sess:    sess,
		seq:     sess.next,
		history: append([]models.Message(nil), sess.history...),
	}
	sess.next++
	return t
}

// Turn is one in-flight query against a session.
type Turn struct {
	store   *Store
	sess    *session
	seq     uint64
	history []models.Message
	done    bool
}

// History is the session history as it was when the turn began.
func (t *Turn) History() []models.Message {
	return t.history
}

// Commit appends the user and assistant messages once every earlier turn has
// finished, then trims the oldest pairs down to the cap. It waits as long as
// earlier turns are in flight; use CommitContext to bound the wait.
func (t *Turn) Commit(user, assistant string) {
	_ = t.CommitContext(context.Background(), user, assistant)
}

// CommitContext is Commit with a cancellable wait. If ctx is done before the
// earlier turns finish, the turn is aborted and ctx.Err() is returned.
func (t *Turn) CommitContext(ctx context.Context, user, assistant string) error {
	sess := t.sess
	stop := context.AfterFunc(ctx, func() {
		sess.mu.Lock()
		sess.cond.Broadcast()
		sess.mu.Unlock()
	})
	defer stop()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if t.done {
		return nil
	}
	for sess.current != t.seq {
		if err := ctx.Err(); err != nil {
			t.abort()
			return err
		}
		sess.cond.Wait()
	}
	t.done = true

	sess.history = append(sess.history, models.UserMessage(user), models.AssistantMessage(assistant))
	limit := t.store.maxMessages
	for len(sess.history) > limit {
		sess.history = sess.history[2:]
	}
	sess.history = append([]models.Message(nil), sess.history...)
	sess.advance()
	return nil
}

// Abort releases the turn without touching the history. It never blocks on
// earlier turns and is a no-op after Commit.
func (t *Turn) Abort() {
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	t.abort()
}

// abort requires sess.mu.
func (t *Turn) abort() {
	sess := t.sess
	if t.done {
		return
	}
	t.done = true
	if sess.current == t.seq {
		sess.advance()
		return
	}
	sess.aborted[t.seq] = true
}

// advance moves past the finished turn and any aborted turns queued behind
// it. Callers hold sess.mu.
func (sess *session) advance() {
	sess.current++
	for sess.aborted[sess.current] {
		delete(sess.aborted, sess.current)
		sess.current++
	}
	sess.cond.Broadcast()
}
