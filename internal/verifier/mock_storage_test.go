package verifier_test

import (
	"context"
	"pipi/backend/internal/models"
	"pipi/backend/internal/telegram"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateActivity(ctx context.Context, a *models.Activity) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockStorage) ReplaceActivity(ctx context.Context, a *models.Activity) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockStorage) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Activity), args.Error(1)
}

func (m *MockStorage) ListActivities(ctx context.Context) ([]models.Activity, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Activity), args.Error(1)
}

func (m *MockStorage) MergePatchActivity(ctx context.Context, id string, patch models.ActivityPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *MockStorage) SetAuthentication(ctx context.Context, id, userID string, done bool) error {
	return m.Called(ctx, id, userID, done).Error(0)
}

func (m *MockStorage) AppendParticipantIfCount(ctx context.Context, id, userID string, expected int) error {
	return m.Called(ctx, id, userID, expected).Error(0)
}

func (m *MockStorage) RemoveParticipant(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *MockStorage) DeleteActivity(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) PublishActivityEvent(ctx context.Context, ev models.ActivityEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockStorage) SubscribeActivityEvents(ctx context.Context) (<-chan models.ActivityEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan models.ActivityEvent), args.Error(1)
}

func (m *MockStorage) SaveUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) UpdateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyHost(ctx context.Context, a models.Activity, ev telegram.Event, actorID string) error {
	return m.Called(ctx, a, ev, actorID).Error(0)
}
