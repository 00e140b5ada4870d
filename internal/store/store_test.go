package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/dropDatabas3/keygate/internal/storage/bolt"
	"github.com/dropDatabas3/keygate/internal/storage/memory"
	"github.com/dropDatabas3/keygate/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── helpers ───

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func memBackend(t *testing.T) storage.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boltBackend(t *testing.T) storage.Store {
	t.Helper()
	s, err := bolt.Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type backendCase struct {
	name string
	open func(t *testing.T) storage.Store
}

var backends = []backendCase{
	{"memory_cas", memBackend},
	{"bolt_getset", boltBackend},
}

func attrs(email string) repository.CreateIdentityInput {
	return repository.CreateIdentityInput{Attributes: map[string]string{"email": email, "name": "x"}}
}

// ─── Identity ───

func TestIdentityStore_CreateGetFind(t *testing.T) {
	for _, bc := range backends {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			st := NewIdentityStore(bc.open(t), IdentityStoreOptions{})

			ident, err := st.Create(ctx, attrs("  Alice@Example.com "))
			require.NoError(t, err)
			assert.NotEmpty(t, ident.ID)
			assert.Equal(t, repository.StatusActive, ident.Status)
			assert.Equal(t, "alice@example.com", ident.Attributes["email"])

			got, err := st.Get(ctx, ident.ID)
			require.NoError(t, err)
			assert.Equal(t, ident.ID, got.ID)
			assert.Equal(t, ident.Attributes, got.Attributes)
			assert.True(t, ident.CreatedAt.Equal(got.CreatedAt))

			found, err := st.FindByNaturalKey(ctx, "ALICE@example.com")
			require.NoError(t, err)
			assert.Equal(t, ident.ID, found.ID)

			_, err = st.Get(ctx, "nope")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			_, err = st.FindByNaturalKey(ctx, "bob@example.com")
			assert.ErrorIs(t, err, repository.ErrNotFound)
		})
	}
}

func TestIdentityStore_CreateConflict(t *testing.T) {
	for _, bc := range backends {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			st := NewIdentityStore(bc.open(t), IdentityStoreOptions{})

			_, err := st.Create(ctx, attrs("alice@example.com"))
			require.NoError(t, err)
			_, err = st.Create(ctx, attrs("ALICE@example.com"))
			assert.ErrorIs(t, err, repository.ErrConflict)
		})
	}
}

func TestIdentityStore_CreateRequiresNaturalKey(t *testing.T) {
	st := NewIdentityStore(memBackend(t), IdentityStoreOptions{})
	_, err := st.Create(context.Background(), repository.CreateIdentityInput{Attributes: map[string]string{"name": "x"}})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	custom := NewIdentityStore(memBackend(t), IdentityStoreOptions{NaturalKey: "username"})
	ident, err := custom.Create(context.Background(), repository.CreateIdentityInput{Attributes: map[string]string{"username": "Neo"}})
	require.NoError(t, err)
	assert.Equal(t, "neo", ident.Attributes["username"])
}

func TestIdentityStore_ConcurrentCreateExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	st := NewIdentityStore(memBackend(t), IdentityStoreOptions{})

	const n = 24
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident, err := st.Create(ctx, attrs("race@example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, ident.ID)
			case repository.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)

	found, err := st.FindByNaturalKey(ctx, "race@example.com")
	require.NoError(t, err)
	assert.Equal(t, winners[0], found.ID)

	list, err := st.List(ctx, repository.ListIdentitiesFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, winners[0], list[0].ID)
}

func TestIdentityStore_ConcurrentCreateDistinctKeys(t *testing.T) {
	ctx := context.Background()
	st := NewIdentityStore(storagetest.WithLatency(memory.New(), time.Millisecond), IdentityStoreOptions{})

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.Create(ctx, attrs(fmt.Sprintf("user%02d@example.com", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := st.List(ctx, repository.ListIdentitiesFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, list, n)
	for i := 0; i < n; i++ {
		_, err := st.FindByNaturalKey(ctx, fmt.Sprintf("user%02d@example.com", i))
		assert.NoError(t, err)
	}
}

func TestIdentityStore_ListSkipsUnclaimed(t *testing.T) {
	ctx := context.Background()
	backend := memBackend(t)
	st := NewIdentityStore(backend, IdentityStoreOptions{})

	kept, err := st.Create(ctx, attrs("kept@example.com"))
	require.NoError(t, err)

	// Create abandonado entre el índice y el claim
	orphan := &repository.Identity{
		ID:         "orphan",
		Attributes: map[string]string{"email": "orphan@example.com"},
		Status:     repository.StatusActive,
	}
	raw, err := encodeIdentity(orphan)
	require.NoError(t, err)
	require.NoError(t, backend.Set(ctx, identityKey(orphan.ID), raw))
	require.NoError(t, appendIndex(ctx, backend, keyIdentityIndex, orphan.ID, nil))

	list, err := st.List(ctx, repository.ListIdentitiesFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)

	// el email sigue libre
	_, err = st.Create(ctx, attrs("orphan@example.com"))
	assert.NoError(t, err)
}

func TestIdentityStore_StatusTransitions(t *testing.T) {
	cases := []struct {
		from, to repository.IdentityStatus
		ok       bool
	}{
		{repository.StatusActive, repository.StatusActive, true},
		{repository.StatusActive, repository.StatusDisabled, true},
		{repository.StatusDisabled, repository.StatusActive, true},
		{repository.StatusActive, repository.StatusDeleted, true},
		{repository.StatusDisabled, repository.StatusDeleted, true},
		{repository.StatusDeleted, repository.StatusDeleted, true},
		{repository.StatusDeleted, repository.StatusActive, false},
		{repository.StatusDeleted, repository.StatusDisabled, false},
	}
	for _, bc := range backends {
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%s/%s->%s", bc.name, tc.from, tc.to), func(t *testing.T) {
				ctx := context.Background()
				st := NewIdentityStore(bc.open(t), IdentityStoreOptions{})
				ident, err := st.Create(ctx, attrs("t@example.com"))
				require.NoError(t, err)
				if tc.from != repository.StatusActive {
					_, err = st.UpdateStatus(ctx, ident.ID, tc.from)
					require.NoError(t, err)
				}

				got, err := st.UpdateStatus(ctx, ident.ID, tc.to)
				if !tc.ok {
					assert.ErrorIs(t, err, repository.ErrInvalidTransition)
					cur, err := st.Get(ctx, ident.ID)
					require.NoError(t, err)
					assert.Equal(t, tc.from, cur.Status)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tc.to, got.Status)
			})
		}
	}
}

func TestIdentityStore_UpdateStatusErrors(t *testing.T) {
	ctx := context.Background()
	st := NewIdentityStore(memBackend(t), IdentityStoreOptions{})
	_, err := st.UpdateStatus(ctx, "missing", repository.StatusDisabled)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ident, err := st.Create(ctx, attrs("a@example.com"))
	require.NoError(t, err)
	_, err = st.UpdateStatus(ctx, ident.ID, "frozen")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestIdentityStore_DeletedKeepsNaturalKey(t *testing.T) {
	ctx := context.Background()
	st := NewIdentityStore(memBackend(t), IdentityStoreOptions{})
	ident, err := st.Create(ctx, attrs("gone@example.com"))
	require.NoError(t, err)
	_, err = st.UpdateStatus(ctx, ident.ID, repository.StatusDeleted)
	require.NoError(t, err)

	_, err = st.Create(ctx, attrs("gone@example.com"))
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestIdentityStore_ListPagingAndFilter(t *testing.T) {
	ctx := context.Background()
	st := NewIdentityStore(memBackend(t), IdentityStoreOptions{})

	var ids []string
	for i := 0; i < 5; i++ {
		ident, err := st.Create(ctx, attrs(fmt.Sprintf("u%d@example.com", i)))
		require.NoError(t, err)
		ids = append(ids, ident.ID)
	}
	_, err := st.UpdateStatus(ctx, ids[1], repository.StatusDisabled)
	require.NoError(t, err)

	page, err := st.List(ctx, repository.ListIdentitiesFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	disabled := repository.StatusDisabled
	only, err := st.List(ctx, repository.ListIdentitiesFilter{Status: &disabled})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, ids[1], only[0].ID)
}

func TestIdentityStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	backend := memBackend(t)
	st := NewIdentityStore(backend, IdentityStoreOptions{})
	require.NoError(t, backend.Set(ctx, identityKey("broken"), []byte{0xff, 0x00, 0x13}))

	_, err := st.Get(ctx, "broken")
	assert.ErrorIs(t, err, repository.ErrCorrupt)
}

// ─── Session ───

func newSession(id, identityID string, now time.Time, ttl time.Duration) *repository.Session {
	return &repository.Session{
		ID:               id,
		IdentityID:       identityID,
		KID:              "kid-1",
		TokenFingerprint: "fp",
		IssuedAt:         now,
		ExpiresAt:        now.Add(ttl),
	}
}

func TestSessionStore_CreateGetRevoke(t *testing.T) {
	for _, bc := range backends {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			st := NewSessionStore(bc.open(t), SessionStoreOptions{Now: clk.Now})

			s := newSession("s1", "ident-1", clk.Now(), time.Hour)
			require.NoError(t, st.Create(ctx, s))

			got, err := st.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "ident-1", got.IdentityID)
			assert.False(t, got.Revoked)
			assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))

			first, changed, err := st.Revoke(ctx, "s1", clk.Now())
			require.NoError(t, err)
			require.True(t, first.Revoked)
			assert.True(t, changed)

			clk.Advance(time.Minute)
			second, changed, err := st.Revoke(ctx, "s1", clk.Now())
			require.NoError(t, err)
			assert.True(t, second.Revoked)
			assert.False(t, changed)
			assert.True(t, first.RevokedAt.Equal(*second.RevokedAt))

			_, _, err = st.Revoke(ctx, "missing", clk.Now())
			assert.ErrorIs(t, err, repository.ErrNotFound)
		})
	}
}

func TestSessionStore_ListByIdentity(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	backend := memBackend(t)
	st := NewSessionStore(backend, SessionStoreOptions{Now: clk.Now})

	require.NoError(t, st.Create(ctx, newSession("a", "alice", clk.Now(), time.Hour)))
	require.NoError(t, st.Create(ctx, newSession("b", "alice", clk.Now(), time.Hour)))
	require.NoError(t, st.Create(ctx, newSession("c", "bob", clk.Now(), time.Hour)))
	require.NoError(t, backend.Set(ctx, sessionKey("b"), []byte("garbage")))

	list, err := st.ListByIdentity(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	none, err := st.ListByIdentity(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionStore_RetentionTTL(t *testing.T) {
	clk := newClock()
	st := NewSessionStore(memBackend(t), SessionStoreOptions{Retention: 24 * time.Hour, Now: clk.Now})

	s := newSession("s", "i", clk.Now(), time.Hour)
	assert.Equal(t, 25*time.Hour, st.ttlFor(s))

	clk.Advance(48 * time.Hour)
	assert.Equal(t, time.Second, st.ttlFor(s))

	noRetention := NewSessionStore(memBackend(t), SessionStoreOptions{Now: clk.Now})
	assert.Zero(t, noRetention.ttlFor(s))
}

func TestSessionStore_ConcurrentRevokeChangesOnce(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := NewSessionStore(storagetest.WithLatency(memory.New(), time.Millisecond),
		SessionStoreOptions{Retention: time.Hour, Now: clk.Now})
	require.NoError(t, st.Create(ctx, newSession("s", "ident", clk.Now(), time.Hour)))

	const n = 16
	var (
		wg      sync.WaitGroup
		changes atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, changed, err := st.Revoke(ctx, "s", clk.Now())
			if !assert.NoError(t, err) {
				return
			}
			assert.True(t, s.Revoked)
			if changed {
				changes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, changes.Load())
}

func TestSessionStore_ConcurrentCreateSameIdentity(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := NewSessionStore(storagetest.WithLatency(memory.New(), time.Millisecond), SessionStoreOptions{Now: clk.Now})

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- st.Create(ctx, newSession(fmt.Sprintf("s%02d", i), "svc", clk.Now(), time.Hour))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := st.ListByIdentity(ctx, "svc")
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestSessionStore_ListByIdentityCompactsIndex(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	backend := memBackend(t)
	st := NewSessionStore(backend, SessionStoreOptions{Retention: time.Millisecond, Now: clk.Now})

	for i := 0; i < 200; i++ {
		require.NoError(t, st.Create(ctx, newSession(fmt.Sprintf("old%03d", i), "alice", clk.Now(), time.Minute)))
	}
	clk.Advance(2 * time.Minute)

	list, err := st.ListByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	members, _, err := readIndex(ctx, backend, sessionIndexKey("alice"))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSessionStore_CreatePrunesDeadMembers(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	backend := memBackend(t)
	st := NewSessionStore(backend, SessionStoreOptions{Retention: time.Millisecond, Now: clk.Now})

	for i := 0; i < compactAt; i++ {
		require.NoError(t, st.Create(ctx, newSession(fmt.Sprintf("old%03d", i), "bob", clk.Now(), time.Minute)))
	}
	// miembros sin registro (el backend ya los recolectó)
	require.NoError(t, appendIndex(ctx, backend, sessionIndexKey("bob"), "gc-1", nil))
	require.NoError(t, appendIndex(ctx, backend, sessionIndexKey("bob"), "gc-2", nil))
	clk.Advance(2 * time.Minute)

	require.NoError(t, st.Create(ctx, newSession("fresh", "bob", clk.Now(), time.Hour)))

	members, _, err := readIndex(ctx, backend, sessionIndexKey("bob"))
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, members)
}

func TestSessionStore_SmallIndexIsNotPruned(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	backend := memBackend(t)
	st := NewSessionStore(backend, SessionStoreOptions{Retention: time.Millisecond, Now: clk.Now})

	require.NoError(t, st.Create(ctx, newSession("a", "carol", clk.Now(), time.Minute)))
	clk.Advance(2 * time.Minute)
	require.NoError(t, st.Create(ctx, newSession("b", "carol", clk.Now(), time.Minute)))

	members, _, err := readIndex(ctx, backend, sessionIndexKey("carol"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
}

// ─── Index ───

func TestAppendIndex_ConcurrentWithCASUnderLatency(t *testing.T) {
	ctx := context.Background()
	backend := storagetest.WithLatency(memory.New(), time.Millisecond)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- appendIndex(ctx, backend, "idx:test", fmt.Sprintf("m%d", i), nil)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	members, _, err := readIndex(ctx, backend, "idx:test")
	require.NoError(t, err)
	assert.Len(t, members, n)

	// idempotente
	require.NoError(t, appendIndex(ctx, backend, "idx:test", "m0", nil))
	members, _, err = readIndex(ctx, backend, "idx:test")
	require.NoError(t, err)
	assert.Len(t, members, n)
}

type lostRaceStore struct {
	*memory.Mem
}

func (lostRaceStore) CompareAndSwap(context.Context, string, []byte, []byte) (bool, error) {
	return false, nil
}

func TestAppendIndex_ExhaustedIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := appendIndex(ctx, lostRaceStore{memory.New()}, "idx:hot", "m", nil)
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}
