package main

import (
	"bytes"
	"context"
	"pipi/backend/internal/activity"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*storage.MemoryStore, *bytes.Buffer, func(args ...string) error) {
	t.Helper()
	store := storage.NewMemoryStore(nil)
	svc := activity.NewService(store, nil, "", nil)
	var out bytes.Buffer
	open := func(context.Context) (*activity.Service, func(), error) {
		return svc, func() {}, nil
	}
	run := func(args ...string) error {
		return newApp(open, &out).Run(context.Background(), append([]string{"admin"}, args...))
	}
	return store, &out, run
}

func seed(t *testing.T, store *storage.MemoryStore) {
	t.Helper()
	a := models.Activity{
		ID:              "a1",
		HostID:          "H",
		Title:           "Hike",
		Category:        models.CategorySport,
		MaxPeopleNumber: 4,
		ParticipantID:   pq.StringArray{"U1", "U2"},
		Authentication:  models.Authentication{"U1": true, "U2": false},
	}
	require.NoError(t, store.CreateActivity(context.Background(), &a))
}

func TestTally(t *testing.T) {
	store, out, run := newTestApp(t)
	seed(t, store)

	require.NoError(t, run("tally", "a1"))
	assert.Contains(t, out.String(), "Hike: 1/2 verified")
}

func TestEvict(t *testing.T) {
	store, out, run := newTestApp(t)
	seed(t, store)

	require.NoError(t, run("evict", "a1", "U2"))
	assert.Contains(t, out.String(), "User U2 removed")

	a, err := store.GetActivity(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, []string(a.ParticipantID))
	assert.NotContains(t, a.Authentication, "U2")

	assert.ErrorIs(t, run("evict", "a1", "U2"), activity.ErrNotMember)
}

func TestDeleteAndListOpen(t *testing.T) {
	store, out, run := newTestApp(t)
	seed(t, store)

	require.NoError(t, run("list-open", "--category", "sport"))
	assert.Contains(t, out.String(), "Hike")

	out.Reset()
	require.NoError(t, run("list-open", "--category", "cafe"))
	assert.NotContains(t, out.String(), "Hike")

	require.NoError(t, run("delete-activity", "a1"))
	_, err := store.GetActivity(context.Background(), "a1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMissingArguments(t *testing.T) {
	_, _, run := newTestApp(t)
	assert.ErrorIs(t, run("evict", "a1"), errUsage)
}
