// Package directory answers "who may do what" and "how does this chat
// want its reminders": admin checks, per-chat timezone and lead offset,
// and the registry of chats the bot may deliver to.
package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"slonyara/internal/storage"
	logx "slonyara/pkg/logx"
)

const (
	DefaultTimezone   = "Europe/Moscow"
	DefaultLeadOffset = 30
)

var ErrBadTimezone = errors.New("unknown timezone")

// Config carries the static part of the directory: owners come from
// the config file and cannot be removed at runtime.
type Config struct {
	DefaultTimezone          string
	DefaultLeadOffsetMinutes int
	OwnerIDs                 []int64
	OwnerUsernames           []string
}

type Service struct {
	log logx.Logger
	st  storage.Store

	mu         sync.RWMutex
	cfg        Config
	ownerIDs   map[int64]struct{}
	ownerNames map[string]struct{}
	admins     map[string]struct{} // stored usernames, normalized
	defaultLoc *time.Location
}

func New(cfg Config, st storage.Store, log logx.Logger) *Service {
	s := &Service{
		log:    log.With(logx.String("svc", "directory")),
		st:     st,
		admins: make(map[string]struct{}),
	}
	s.applyConfigLocked(cfg)
	return s
}

// Load reads the stored admin usernames. Called once at startup.
func (s *Service) Load(ctx context.Context) error {
	names, err := s.st.ListAdmins(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.admins = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.admins[normUsername(n)] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// ApplyConfig swaps the config-sourced part (owners, defaults) on hot
// reload; stored admins are untouched.
func (s *Service) ApplyConfig(cfg Config) {
	s.mu.Lock()
	s.applyConfigLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyConfigLocked(cfg Config) {
	s.cfg = cfg
	s.ownerIDs = make(map[int64]struct{}, len(cfg.OwnerIDs))
	for _, id := range cfg.OwnerIDs {
		s.ownerIDs[id] = struct{}{}
	}
	s.ownerNames = make(map[string]struct{}, len(cfg.OwnerUsernames))
	for _, n := range cfg.OwnerUsernames {
		s.ownerNames[normUsername(n)] = struct{}{}
	}

	tz := strings.TrimSpace(cfg.DefaultTimezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("default timezone unavailable, falling back to UTC", logx.String("tz", tz), logx.Err(err))
		loc = time.UTC
	}
	s.defaultLoc = loc
}

// ---- authorization ----

func (s *Service) IsOwner(userID int64, username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ownerIDs[userID]; ok {
		return true
	}
	_, ok := s.ownerNames[normUsername(username)]
	return ok
}

// IsAdmin reports whether the user is an owner or a stored admin.
func (s *Service) IsAdmin(userID int64, username string) bool {
	if s.IsOwner(userID, username) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[normUsername(username)]
	return ok
}

func (s *Service) AddAdmin(ctx context.Context, username string) error {
	u := normUsername(username)
	if u == "" {
		return errors.New("empty username")
	}
	if err := s.st.AddAdmin(ctx, u); err != nil {
		return err
	}
	s.mu.Lock()
	s.admins[u] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Service) RemoveAdmin(ctx context.Context, username string) error {
	u := normUsername(username)
	if err := s.st.RemoveAdmin(ctx, u); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.admins, u)
	s.mu.Unlock()
	return nil
}

func (s *Service) Admins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.admins))
	for u := range s.admins {
		out = append(out, u)
	}
	return out
}

// ---- per-chat settings ----

// TimeZone resolves the chat's timezone, falling back to the default
// on missing settings or an unloadable zone name.
func (s *Service) TimeZone(ctx context.Context, chatID int64) *time.Location {
	cs, err := s.st.GetChatSettings(ctx, chatID)
	if err != nil {
		s.log.Warn("chat settings read failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	if cs == nil || strings.TrimSpace(cs.Timezone) == "" {
		return s.defaultLocation()
	}
	loc, err := time.LoadLocation(cs.Timezone)
	if err != nil {
		s.log.Warn("stored timezone unavailable", logx.Int64("chat_id", chatID), logx.String("tz", cs.Timezone))
		return s.defaultLocation()
	}
	return loc
}

// LeadOffset resolves the chat's lead offset in minutes, normalized to
// be non-negative.
func (s *Service) LeadOffset(ctx context.Context, chatID int64) int {
	cs, err := s.st.GetChatSettings(ctx, chatID)
	if err != nil {
		s.log.Warn("chat settings read failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	if cs == nil {
		return s.defaultOffset()
	}
	if cs.LeadOffsetMinutes < 0 {
		return 0
	}
	return cs.LeadOffsetMinutes
}

func (s *Service) SetTimeZone(ctx context.Context, chatID int64, name string) error {
	name = strings.TrimSpace(name)
	if _, err := time.LoadLocation(name); err != nil || name == "" {
		return ErrBadTimezone
	}
	cs, err := s.st.GetChatSettings(ctx, chatID)
	if err != nil {
		return err
	}
	if cs == nil {
		cs = &storage.ChatSettings{ChatID: chatID, LeadOffsetMinutes: s.defaultOffset()}
	}
	cs.Timezone = name
	return s.st.PutChatSettings(ctx, *cs)
}

func (s *Service) SetLeadOffset(ctx context.Context, chatID int64, minutes int) error {
	if minutes < 0 {
		minutes = 0
	}
	cs, err := s.st.GetChatSettings(ctx, chatID)
	if err != nil {
		return err
	}
	if cs == nil {
		cs = &storage.ChatSettings{ChatID: chatID}
	}
	cs.LeadOffsetMinutes = minutes
	return s.st.PutChatSettings(ctx, *cs)
}

func (s *Service) defaultLocation() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultLoc
}

func (s *Service) defaultOffset() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.DefaultLeadOffsetMinutes < 0 {
		return 0
	}
	if s.cfg.DefaultLeadOffsetMinutes == 0 {
		return DefaultLeadOffset
	}
	return s.cfg.DefaultLeadOffsetMinutes
}

// ---- chat registry ----

func (s *Service) RegisterChat(ctx context.Context, rc storage.RegisteredChat) error {
	return s.st.PutChat(ctx, rc)
}

func (s *Service) UnregisterChat(ctx context.Context, chatID int64, topicID int) error {
	return s.st.DeleteChat(ctx, chatID, topicID)
}

func (s *Service) Chats(ctx context.Context) ([]storage.RegisteredChat, error) {
	return s.st.ListChats(ctx)
}

func (s *Service) IsRegistered(ctx context.Context, chatID int64, topicID int) bool {
	chats, err := s.st.ListChats(ctx)
	if err != nil {
		return false
	}
	for _, rc := range chats {
		if rc.ChatID == chatID && rc.TopicID == topicID {
			return true
		}
	}
	return false
}

func normUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}
