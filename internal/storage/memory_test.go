package storage_test

import (
	"context"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedActivity(t *testing.T, s storage.Storage, max int, participants ...string) *models.Activity {
	t.Helper()
	auth := models.Authentication{}
	for _, p := range participants {
		auth[p] = false
	}
	a := &models.Activity{
		HostID:          "host",
		Title:           "Board games",
		MaxPeopleNumber: max,
		ParticipantID:   append(pq.StringArray{}, participants...),
		Category:        models.CategoryStudy,
		StartDateTime:   time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC),
		Authentication:  auth,
	}
	require.NoError(t, s.CreateActivity(context.Background(), a))
	require.NotEmpty(t, a.ID)
	return a
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 3, "u1")

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	got.ParticipantID[0] = "mutated"
	got.Authentication["u1"] = true

	again, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"u1"}, again.ParticipantID)
	assert.False(t, again.Authentication["u1"])
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)

	_, err := s.GetActivity(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.MergePatchActivity(ctx, "missing", models.ActivityPatch{}), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetAuthentication(ctx, "missing", "u1", true), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteActivity(ctx, "missing"), storage.ErrNotFound)
	assert.ErrorIs(t, s.AppendParticipantIfCount(ctx, "missing", "u1", 0), storage.ErrNotFound)
	assert.ErrorIs(t, s.RemoveParticipant(ctx, "missing", "u1"), storage.ErrNotFound)
}

func TestMemoryStore_MergePatchReplacesAuthenticationWhole(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 4, "u1", "u2")
	require.NoError(t, s.SetAuthentication(ctx, a.ID, "u1", true))

	auth := models.Authentication{"u2": true}
	title := "Renamed"
	require.NoError(t, s.MergePatchActivity(ctx, a.ID, models.ActivityPatch{Title: &title, Authentication: &auth}))

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.Authentication{"u2": true}, got.Authentication)
	assert.Equal(t, pq.StringArray{"u1", "u2"}, got.ParticipantID, "unpatched columns survive")
}

func TestMemoryStore_SetAuthenticationIsSingleKey(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 4, "u1", "u2")

	require.NoError(t, s.SetAuthentication(ctx, a.ID, "u1", true))
	require.NoError(t, s.SetAuthentication(ctx, a.ID, "u2", true))

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Authentication{"u1": true, "u2": true}, got.Authentication)
}

func TestMemoryStore_RemoveParticipantKeepsOtherFlags(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 4, "u1", "u2", "u3")
	require.NoError(t, s.SetAuthentication(ctx, a.ID, "u2", true))

	require.NoError(t, s.RemoveParticipant(ctx, a.ID, "u3"))
	assert.ErrorIs(t, s.RemoveParticipant(ctx, a.ID, "u3"), storage.ErrConflict, "already gone")

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"u1", "u2"}, got.ParticipantID)
	assert.Equal(t, models.Authentication{"u1": false, "u2": true}, got.Authentication)
}

func TestMemoryStore_AppendParticipantIfCount(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 3)

	require.NoError(t, s.AppendParticipantIfCount(ctx, a.ID, "u1", 0))
	assert.ErrorIs(t, s.AppendParticipantIfCount(ctx, a.ID, "u2", 0), storage.ErrConflict, "stale count")
	assert.ErrorIs(t, s.AppendParticipantIfCount(ctx, a.ID, "u1", 1), storage.ErrConflict, "already member")
	require.NoError(t, s.AppendParticipantIfCount(ctx, a.ID, "u2", 1))
	assert.ErrorIs(t, s.AppendParticipantIfCount(ctx, a.ID, "u3", 2), storage.ErrConflict, "closed")

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"u1", "u2"}, got.ParticipantID)
	assert.Equal(t, models.Authentication{"u1": false, "u2": false}, got.Authentication)
}

func TestMemoryStore_ConditionalAppendNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 2)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.AppendParticipantIfCount(ctx, a.ID, "user-"+string(rune('a'+i)), 0)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, got.ParticipantID, 1)
}

func TestMemoryStore_ListSortedByStart(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	late := &models.Activity{HostID: "h", MaxPeopleNumber: 2, StartDateTime: time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)}
	early := &models.Activity{HostID: "h", MaxPeopleNumber: 2, StartDateTime: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.CreateActivity(ctx, late))
	require.NoError(t, s.CreateActivity(ctx, early))

	list, err := s.ListActivities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.NotNil(t, list[0].ParticipantID)
}

func TestMemoryStore_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	a := seedActivity(t, s, 3, "u1")

	a.Title = "Replaced"
	a.ParticipantID = nil
	require.NoError(t, s.ReplaceActivity(ctx, a))

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Replaced", got.Title)
	assert.Empty(t, got.ParticipantID)

	require.NoError(t, s.DeleteActivity(ctx, a.ID))
	_, err = s.GetActivity(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)

	u := &models.User{Nickname: "jia", Email: "jia@example.com", Affiliation: models.AffiliationPostech}
	require.NoError(t, s.SaveUser(ctx, u))
	require.NotEmpty(t, u.ID)

	assert.ErrorIs(t, s.SaveUser(ctx, &models.User{Email: "JIA@example.com"}), storage.ErrEmailTaken)

	byEmail, err := s.GetUserByEmail(ctx, "jia@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	other := &models.User{Nickname: "sy", Email: "sy@example.com"}
	require.NoError(t, s.SaveUser(ctx, other))
	other.Email = "jia@example.com"
	assert.ErrorIs(t, s.UpdateUser(ctx, other), storage.ErrEmailTaken)

	u.Nickname = "jia2"
	u.Email = "jia2@example.com"
	require.NoError(t, s.UpdateUser(ctx, u))
	_, err = s.GetUserByEmail(ctx, "jia@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jia2", byID.Nickname)
}

func TestMemoryStore_EventsStopAfterCancel(t *testing.T) {
	s := storage.NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := s.SubscribeActivityEvents(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, s.Subscribers())

	require.NoError(t, s.PublishActivityEvent(context.Background(), models.ActivityEvent{
		Kind: models.EventActivityUpdated, ActivityID: "a1",
	}))
	select {
	case ev := <-events:
		assert.Equal(t, "a1", ev.ActivityID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-events
	assert.False(t, open)
}
