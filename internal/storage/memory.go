package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"slonyara/internal/job"
)

// memoryStore keeps everything in process memory. Used for tests and
// for running without a database; state does not survive restarts.
type memoryStore struct {
	mu        sync.Mutex
	jobs      map[string]job.Reminder
	archive   []ArchivedReminder
	archiveID int64
	audit     []AuditEntry
	settings  map[int64]ChatSettings
	chats     map[[2]int64]RegisteredChat
	admins    map[string]struct{}
}

func newMemory() *memoryStore {
	return &memoryStore{
		jobs:     make(map[string]job.Reminder),
		settings: make(map[int64]ChatSettings),
		chats:    make(map[[2]int64]RegisteredChat),
		admins:   make(map[string]struct{}),
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return newMemory() }

func (s *memoryStore) Close() error { return nil }

// ---- jobs ----

func (s *memoryStore) PutJob(_ context.Context, j job.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *memoryStore) GetJob(_ context.Context, id string) (*job.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (s *memoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *memoryStore) ListJobs(_ context.Context) ([]job.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.Reminder, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out, nil
}

func (s *memoryStore) ListChatJobs(_ context.Context, chatID int64, topicID int) ([]job.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []job.Reminder
	for _, j := range s.jobs {
		if j.TargetChatID != chatID {
			continue
		}
		if topicID >= 0 && j.TopicID != topicID {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out, nil
}

func (s *memoryStore) FindJobByText(_ context.Context, chatID int64, text string) (*job.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.TargetChatID == chatID && j.Text == text {
			cp := j
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ArchiveJob(_ context.Context, j job.Reminder, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiveID++
	s.archive = append(s.archive, ArchivedReminder{
		ID:         s.archiveID,
		Job:        j,
		Reason:     reason,
		ArchivedAt: time.Now().UTC(),
	})
	delete(s.jobs, j.ID)
	return nil
}

func (s *memoryStore) ListArchive(_ context.Context, limit, offset int) ([]ArchivedReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	// Newest first, like the sqlite driver.
	n := len(s.archive)
	var out []ArchivedReminder
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.archive[i])
	}
	return out, nil
}

func (s *memoryStore) PruneArchive(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.archive[:0]
	var pruned int64
	for _, a := range s.archive {
		if a.ArchivedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, a)
	}
	s.archive = kept
	return pruned, nil
}

// ---- audit ----

func (s *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.audit = append(s.audit, e)
	return nil
}

func (s *memoryStore) PruneAudit(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	var pruned int64
	for _, e := range s.audit {
		if e.At.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return pruned, nil
}

// AuditEntries returns a copy of the audit log; test helper.
func (s *memoryStore) AuditEntries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...)
}

// ---- chat settings / registry / admins ----

func (s *memoryStore) GetChatSettings(_ context.Context, chatID int64) (*ChatSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.settings[chatID]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s *memoryStore) PutChatSettings(_ context.Context, cs ChatSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[cs.ChatID] = cs
	return nil
}

func (s *memoryStore) PutChat(_ context.Context, rc RegisteredChat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[[2]int64{rc.ChatID, int64(rc.TopicID)}] = rc
	return nil
}

func (s *memoryStore) DeleteChat(_ context.Context, chatID int64, topicID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, [2]int64{chatID, int64(topicID)})
	return nil
}

func (s *memoryStore) ListChats(_ context.Context) ([]RegisteredChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RegisteredChat, 0, len(s.chats))
	for _, rc := range s.chats {
		out = append(out, rc)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].ChatID != out[k].ChatID {
			return out[i].ChatID < out[k].ChatID
		}
		return out[i].TopicID < out[k].TopicID
	})
	return out, nil
}

func (s *memoryStore) ListAdmins(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.admins))
	for u := range s.admins {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) AddAdmin(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := strings.TrimSpace(username); u != "" {
		s.admins[u] = struct{}{}
	}
	return nil
}

func (s *memoryStore) RemoveAdmin(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins, strings.TrimSpace(username))
	return nil
}
