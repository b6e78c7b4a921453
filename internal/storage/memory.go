package storage

import (
	"context"
	"errors"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const memoryBusBuffer = 64

var (
	_ Storage = (*MemoryStore)(nil)
	_ Storage = (*Service)(nil)
)

// MemoryStore keeps everything in process. It is used for local runs without
// Postgres/Redis and in tests. Records are copied on the way in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	activities map[string]models.Activity
	users      map[string]models.User
	emails     map[string]string

	subMu  sync.Mutex
	subs   map[int]chan models.ActivityEvent
	nextID int

	Logger *zap.Logger
}

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		activities: make(map[string]models.Activity),
		users:      make(map[string]models.User),
		emails:     make(map[string]string),
		subs:       make(map[int]chan models.ActivityEvent),
		Logger:     logger,
	}
}

func (m *MemoryStore) CreateActivity(_ context.Context, a *models.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.activities[a.ID]; exists {
		return errors.New("activity id already exists")
	}
	m.activities[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) ReplaceActivity(_ context.Context, a *models.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) GetActivity(_ context.Context, id string) (*models.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := a.Clone()
	return &out, nil
}

func (m *MemoryStore) ListActivities(_ context.Context) ([]models.Activity, error) {
	m.mu.RLock()
	list := make([]models.Activity, 0, len(m.activities))
	for _, a := range m.activities {
		list = append(list, a.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].StartDateTime.Equal(list[j].StartDateTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartDateTime.Before(list[j].StartDateTime)
	})
	return list, nil
}

func (m *MemoryStore) MergePatchActivity(_ context.Context, id string, patch models.ActivityPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return ErrNotFound
	}
	m.activities[id] = patch.Apply(a.Clone())
	return nil
}

func (m *MemoryStore) SetAuthentication(_ context.Context, id, userID string, done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return ErrNotFound
	}
	m.activities[id] = lifecycle.UpdatingAuthentication(a, userID, done)
	return nil
}

func (m *MemoryStore) AppendParticipantIfCount(_ context.Context, id, userID string, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return ErrNotFound
	}
	next, err := lifecycle.ConditionalJoin(a, userID, expected)
	if err != nil {
		return ErrConflict
	}
	m.activities[id] = next
	return nil
}

func (m *MemoryStore) RemoveParticipant(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return ErrNotFound
	}
	if !lifecycle.IsMember(a, userID) {
		return ErrConflict
	}
	m.activities[id] = lifecycle.RemoveParticipant(a, userID)
	return nil
}

func (m *MemoryStore) DeleteActivity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[id]; !ok {
		return ErrNotFound
	}
	delete(m.activities, id)
	return nil
}

// PublishActivityEvent fans ev out to current subscribers. A subscriber whose
// buffer is full misses the event.
func (m *MemoryStore) PublishActivityEvent(_ context.Context, ev models.ActivityEvent) error {
	if ev.Activity != nil {
		copied := ev.Activity.Clone()
		ev.Activity = &copied
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.Logger.Warn("Dropping activity event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("activity_id", ev.ActivityID))
		}
	}
	return nil
}

func (m *MemoryStore) SubscribeActivityEvents(ctx context.Context) (<-chan models.ActivityEvent, error) {
	ch := make(chan models.ActivityEvent, memoryBusBuffer)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subs, id)
		close(ch)
		m.subMu.Unlock()
	}()
	return ch, nil
}

// Subscribers returns the number of live subscriptions.
func (m *MemoryStore) Subscribers() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subs)
}

func (m *MemoryStore) SaveUser(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	key := strings.ToLower(user.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.emails[key]; taken {
		return ErrEmailTaken
	}
	m.users[user.ID] = *user
	m.emails[key] = user.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	key := strings.ToLower(user.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := m.emails[key]; taken && owner != user.ID {
		return ErrEmailTaken
	}
	delete(m.emails, strings.ToLower(old.Email))
	m.users[user.ID] = *user
	m.emails[key] = user.ID
	return nil
}
