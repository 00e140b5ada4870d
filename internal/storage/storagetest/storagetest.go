// Package storagetest contiene la suite de conformidad que todo driver de
// storage debe pasar. Los drivers la corren desde sus propios _test.go.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/keygate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run ejecuta la suite contra stores creados por open. Cada subtest recibe
// un store nuevo; el cleanup lo cierra.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	fresh := func(t *testing.T) storage.Store {
		s := open(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("get missing returns not found", func(t *testing.T) {
		s := fresh(t)
		_, err := s.Get(context.Background(), "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := fresh(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "k1", []byte("v1")))
		v, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), v)

		// upsert
		require.NoError(t, s.Set(ctx, "k1", []byte("v2")))
		v, err = s.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), v)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := fresh(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "a:1", []byte("x")))
		require.NoError(t, s.Set(ctx, "a:2", []byte("y")))
		v, err := s.Get(ctx, "a:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), v)
	})

	t.Run("capabilities", func(t *testing.T) {
		s := fresh(t)
		caps := storage.CapabilitiesOf(s)
		if !caps.CompareAndSwap {
			t.Skip("driver has no compare-and-swap")
		}
		ctx := context.Background()

		swapped, supported, err := storage.CompareAndSwap(ctx, s, "cas", nil, []byte("first"))
		require.NoError(t, err)
		require.True(t, supported)
		assert.True(t, swapped)

		// ya existe: "sólo si ausente" falla sin error
		swapped, _, err = storage.CompareAndSwap(ctx, s, "cas", nil, []byte("second"))
		require.NoError(t, err)
		assert.False(t, swapped)

		// valor viejo equivocado
		swapped, _, err = storage.CompareAndSwap(ctx, s, "cas", []byte("nope"), []byte("second"))
		require.NoError(t, err)
		assert.False(t, swapped)

		swapped, _, err = storage.CompareAndSwap(ctx, s, "cas", []byte("first"), []byte("second"))
		require.NoError(t, err)
		assert.True(t, swapped)

		v, err := s.Get(ctx, "cas")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), v)
	})

	t.Run("concurrent claim has one winner", func(t *testing.T) {
		s := fresh(t)
		if !storage.CapabilitiesOf(s).CompareAndSwap {
			t.Skip("driver has no compare-and-swap")
		}
		ctx := context.Background()
		const n = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, _, err := storage.CompareAndSwap(ctx, s, "claim", nil, []byte(fmt.Sprintf("w%d", i)))
				if err == nil && ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("ttl expires", func(t *testing.T) {
		s := fresh(t)
		if !storage.CapabilitiesOf(s).TTL {
			t.Skip("driver has no ttl")
		}
		ctx := context.Background()
		require.NoError(t, storage.SetWithTTL(ctx, s, "ttl", []byte("x"), 50*time.Millisecond))
		v, err := s.Get(ctx, "ttl")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), v)

		require.Eventually(t, func() bool {
			_, err := s.Get(ctx, "ttl")
			return err != nil
		}, 3*time.Second, 25*time.Millisecond)
	})

	t.Run("ping", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, storage.Ping(context.Background(), s))
	})
}
