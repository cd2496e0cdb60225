package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSetsDefaults(t *testing.T) {
	store := NewMemoryStore()

	s := store.Create("usr_alice", Device{IPSubnet: "10.0", UAFamily: "Chrome/1"})

	assert.True(t, s.Active)
	assert.Equal(t, "usr_alice", s.PrincipalID)
	assert.Empty(t, s.AccessLog)
	assert.Nil(t, s.RevokedAt)
	assert.Contains(t, s.ID, "sess_")
	assert.Equal(t, s.CreatedAt, s.LastActivityAt)
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	s := store.Create("usr_alice", Device{})
	store.Touch(s.ID, "/api/v1/records/1")

	got, ok := store.Get(s.ID)
	require.True(t, ok)
	require.Len(t, got.AccessLog, 1)

	// Mutating the copy must not affect store state.
	got.AccessLog[0].Endpoint = "/tampered"
	got.Active = false

	again, ok := store.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "/api/v1/records/1", again.AccessLog[0].Endpoint)
	assert.True(t, again.Active)
}

func TestGetUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	_, ok := store.Get("sess_missing")
	assert.False(t, ok)
}

func TestTouchUpdatesActivityAndLog(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	s := store.Create("usr_alice", Device{})

	now = now.Add(5 * time.Minute)
	require.True(t, store.Touch(s.ID, "/api/v1/patients"))

	got, _ := store.Get(s.ID)
	assert.Equal(t, now, got.LastActivityAt)
	require.Len(t, got.AccessLog, 1)
	assert.Equal(t, "/api/v1/patients", got.AccessLog[0].Endpoint)
}

func TestTouchTrimsToMostRecentEntries(t *testing.T) {
	store := NewMemoryStore()
	s := store.Create("usr_alice", Device{})

	t.Logf("Appending %d entries to force trimming", MaxAccessLogEntries+20)
	for i := 0; i < MaxAccessLogEntries+20; i++ {
		store.Touch(s.ID, fmt.Sprintf("/ep/%d", i))
	}

	got, _ := store.Get(s.ID)
	require.Len(t, got.AccessLog, MaxAccessLogEntries)
	// Oldest surviving entry should be #20, newest #119.
	assert.Equal(t, "/ep/20", got.AccessLog[0].Endpoint)
	assert.Equal(t, fmt.Sprintf("/ep/%d", MaxAccessLogEntries+19), got.AccessLog[len(got.AccessLog)-1].Endpoint)
}

func TestRevoke(t *testing.T) {
	store := NewMemoryStore()
	s := store.Create("usr_alice", Device{})

	require.True(t, store.Revoke(s.ID))

	got, ok := store.Get(s.ID)
	require.True(t, ok)
	assert.False(t, got.Active)
	require.NotNil(t, got.RevokedAt)

	// Touch on a revoked session must be rejected.
	assert.False(t, store.Touch(s.ID, "/api/v1/patients"))

	// Revocation is idempotent.
	assert.True(t, store.Revoke(s.ID))
	assert.False(t, store.Revoke("sess_missing"))
}

func TestRevokeAll(t *testing.T) {
	store := NewMemoryStore()
	store.Create("usr_alice", Device{})
	store.Create("usr_alice", Device{})
	store.Create("usr_bob", Device{})

	count := store.RevokeAll("usr_alice")
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, store.Count())

	// Second pass finds nothing active.
	assert.Equal(t, 0, store.RevokeAll("usr_alice"))
}

func TestConcurrentTouchLosesNoUpdates(t *testing.T) {
	store := NewMemoryStore()
	s := store.Create("usr_alice", Device{})

	const writers = 8
	const perWriter = 10 // 80 total, below the trim limit

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				store.Touch(s.ID, fmt.Sprintf("/w/%d/%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	got, _ := store.Get(s.ID)
	assert.Len(t, got.AccessLog, writers*perWriter, "no appends may be lost")
}

func TestSingleSessionAppendOrderPreserved(t *testing.T) {
	store := NewMemoryStore()
	s := store.Create("usr_alice", Device{})

	for i := 0; i < 50; i++ {
		store.Touch(s.ID, fmt.Sprintf("/seq/%d", i))
	}

	got, _ := store.Get(s.ID)
	for i, e := range got.AccessLog {
		require.Equal(t, fmt.Sprintf("/seq/%d", i), e.Endpoint)
	}
}
