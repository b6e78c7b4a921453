package verifier_test

import (
	"context"
	"errors"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"pipi/backend/internal/telegram"
	"pipi/backend/internal/verifier"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleActivity() models.Activity {
	return models.Activity{
		ID:              "a1",
		HostID:          "H",
		Title:           "Coffee",
		MaxPeopleNumber: 3,
		ParticipantID:   pq.StringArray{"U"},
		Authentication:  models.Authentication{"U": false},
	}
}

func TestEligible(t *testing.T) {
	v := verifier.New(new(MockStorage), nil, nil)
	a := sampleActivity()

	assert.ErrorIs(t, v.Eligible(a, "H"), verifier.ErrHostSelfVerify)
	assert.ErrorIs(t, v.Eligible(a, "stranger"), verifier.ErrNotParticipant)
	assert.NoError(t, v.Eligible(a, "U"))

	v.RequireMembership = false
	assert.NoError(t, v.Eligible(a, "stranger"))
	assert.ErrorIs(t, v.Eligible(a, "H"), verifier.ErrHostSelfVerify)
}

func storedAfterWrite() *models.Activity {
	a := sampleActivity()
	a.ParticipantID = pq.StringArray{"U", "V"}
	a.Authentication = models.Authentication{"U": true, "V": true}
	return &a
}

func TestOnProximityConfirmed_WritesSingleKey(t *testing.T) {
	storageMock := new(MockStorage)
	notifier := new(MockNotifier)
	storageMock.On("SetAuthentication", mock.Anything, "a1", "U", true).Return(nil).Once()
	storageMock.On("GetActivity", mock.Anything, "a1").Return(storedAfterWrite(), nil).Once()
	storageMock.On("PublishActivityEvent", mock.Anything, mock.MatchedBy(func(ev models.ActivityEvent) bool {
		return ev.Kind == models.EventActivityUpdated && ev.ActivityID == "a1" &&
			ev.Activity.Authentication["U"] && ev.Activity.Authentication["V"]
	})).Return(nil).Once()
	notifier.On("NotifyHost", mock.Anything, mock.Anything, telegram.EventVerified, "U").Return(nil).Once()

	v := verifier.New(storageMock, notifier, nil)
	a := sampleActivity()
	updated, err := v.OnProximityConfirmed(context.Background(), a, "U")

	require.NoError(t, err)
	assert.True(t, updated.Authentication["U"])
	assert.True(t, updated.Authentication["V"], "result is the stored record")
	assert.False(t, a.Authentication["U"], "input must stay untouched")
	storageMock.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestOnProximityConfirmed_RewritesTrue(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("SetAuthentication", mock.Anything, "a1", "U", true).Return(nil).Twice()
	storageMock.On("GetActivity", mock.Anything, "a1").Return(storedAfterWrite(), nil)
	storageMock.On("PublishActivityEvent", mock.Anything, mock.Anything).Return(nil)

	v := verifier.New(storageMock, nil, nil)
	first, err := v.OnProximityConfirmed(context.Background(), sampleActivity(), "U")
	require.NoError(t, err)
	second, err := v.OnProximityConfirmed(context.Background(), *first, "U")
	require.NoError(t, err)

	assert.True(t, second.Authentication["U"])
	storageMock.AssertNumberOfCalls(t, "SetAuthentication", 2)
}

func TestOnProximityConfirmed_StoreFailureKeepsOriginal(t *testing.T) {
	storageMock := new(MockStorage)
	notifier := new(MockNotifier)
	storageMock.On("SetAuthentication", mock.Anything, "a1", "U", true).Return(errors.New("connection reset")).Once()

	v := verifier.New(storageMock, notifier, nil)
	got, err := v.OnProximityConfirmed(context.Background(), sampleActivity(), "U")

	require.Error(t, err)
	assert.False(t, got.Authentication["U"])
	storageMock.AssertNotCalled(t, "PublishActivityEvent", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "NotifyHost", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOnProximityConfirmed_HostIsRejectedWithoutWrite(t *testing.T) {
	storageMock := new(MockStorage)

	v := verifier.New(storageMock, nil, nil)
	_, err := v.OnProximityConfirmed(context.Background(), sampleActivity(), "H")

	assert.ErrorIs(t, err, verifier.ErrHostSelfVerify)
	storageMock.AssertNotCalled(t, "SetAuthentication", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOnProximityConfirmed_PublishFailureIsNotFatal(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("SetAuthentication", mock.Anything, "a1", "U", true).Return(nil)
	storageMock.On("GetActivity", mock.Anything, "a1").Return(storedAfterWrite(), nil)
	storageMock.On("PublishActivityEvent", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	v := verifier.New(storageMock, nil, nil)
	got, err := v.OnProximityConfirmed(context.Background(), sampleActivity(), "U")

	require.NoError(t, err)
	assert.True(t, got.Authentication["U"])
}

func TestOnProximityConfirmed_ReloadFailureFallsBackToLocalCopy(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("SetAuthentication", mock.Anything, "a1", "U", true).Return(nil)
	storageMock.On("GetActivity", mock.Anything, "a1").Return(nil, errors.New("connection reset"))
	storageMock.On("PublishActivityEvent", mock.Anything, mock.MatchedBy(func(ev models.ActivityEvent) bool {
		return ev.Activity.Authentication["U"]
	})).Return(nil).Once()

	v := verifier.New(storageMock, nil, nil)
	got, err := v.OnProximityConfirmed(context.Background(), sampleActivity(), "U")

	require.NoError(t, err)
	assert.Equal(t, models.Authentication{"U": true}, got.Authentication)
	storageMock.AssertExpectations(t)
}

func TestOnProximityConfirmed_EventCarriesFlagsStoredMeanwhile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := storage.NewMemoryStore(nil)
	a := sampleActivity()
	a.ParticipantID = pq.StringArray{"U", "V"}
	a.Authentication = models.Authentication{"U": false, "V": false}
	require.NoError(t, store.CreateActivity(ctx, &a))
	stale := a.Clone()
	// V verified after the copy was loaded.
	require.NoError(t, store.SetAuthentication(ctx, a.ID, "V", true))

	events, err := store.SubscribeActivityEvents(ctx)
	require.NoError(t, err)

	v := verifier.New(store, nil, nil)
	got, err := v.OnProximityConfirmed(ctx, stale, "U")
	require.NoError(t, err)

	want := models.Authentication{"U": true, "V": true}
	assert.Equal(t, want, got.Authentication)
	ev := <-events
	require.NotNil(t, ev.Activity)
	assert.Equal(t, want, ev.Activity.Authentication)
}

func TestVerify_AgainstMemoryStore(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	a := sampleActivity()
	require.NoError(t, store.CreateActivity(context.Background(), &a))

	v := verifier.New(store, nil, nil)
	_, err := v.OnProximityConfirmed(context.Background(), a, "U")
	require.NoError(t, err)

	stored, err := store.GetActivity(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Tally{Verified: 1, Total: 1}, v.Tally(*stored))
}
