package cartstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susutoys/storefront/cart"
)

// failingKV returns err from every call.
type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error)  { return nil, f.err }
func (f failingKV) Set(context.Context, string, []byte) error    { return f.err }
func (f failingKV) Delete(context.Context, string) error         { return f.err }

func newTestStore(t *testing.T) (*Store, *MemoryKV) {
	t.Helper()
	kv := NewMemoryKV()
	return New(kv, zerolog.Nop()), kv
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	entries, err := s.Load(context.Background(), "v1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_AddMergesByProduct(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Add(ctx, "v1", cart.Entry{ID: 1, Name: "A", Price: 100000, Image: "a.png"})
	require.NoError(t, err)
	_, err = s.Add(ctx, "v1", cart.Entry{ID: 2, Name: "B", Price: 5000, Quantity: 3})
	require.NoError(t, err)
	entries, err := s.Add(ctx, "v1", cart.Entry{ID: 1, Name: "A renamed", Price: 1})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, cart.Entry{ID: 1, Name: "A", Price: 100000, Quantity: 2, Image: "a.png"}, entries[0])
	assert.Equal(t, 3, entries[1].Quantity)

	loaded, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)

	other, err := s.Load(ctx, "v2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_AddRejectsInvalidEntry(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Add(context.Background(), "v1", cart.Entry{ID: 0, Price: 10})
	assert.ErrorIs(t, err, ErrMalformedEntry)
	_, err = s.Add(context.Background(), "v1", cart.Entry{ID: 4, Price: -1})
	assert.ErrorIs(t, err, ErrMalformedEntry)
}

func TestStore_ConcurrentAddsDoNotLoseQuantity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, "v1", cart.Entry{ID: 9, Name: "Lego", Price: 10})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 20, entries[0].Quantity)
}

func TestStore_LoadFailsOpenOnMalformedValue(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"not json":      `{"id":1`,
		"object":        `{"id":1}`,
		"zero id":       `[{"id":0,"name":"x","price":1,"quantity":1}]`,
		"zero quantity": `[{"id":1,"name":"x","price":1,"quantity":0}]`,
		"negative":      `[{"id":1,"name":"x","price":-5,"quantity":1}]`,
		"duplicate":     `[{"id":1,"price":1,"quantity":1},{"id":1,"price":1,"quantity":2}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s, kv := newTestStore(t)
			require.NoError(t, kv.Set(ctx, cartKey("v1"), []byte(raw)))

			entries, err := s.Load(ctx, "v1")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestStore_LoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Add(ctx, "v1", cart.Entry{ID: 1, Name: "A", Price: 1})
	require.NoError(t, err)

	first, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	first[0].Quantity = 50

	second, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, second[0].Quantity)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Add(ctx, "v1", cart.Entry{ID: 1, Name: "A", Price: 1})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "v1"))
	entries, err := s.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_BackendErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	s := New(failingKV{err: boom}, zerolog.Nop())

	_, err := s.Load(context.Background(), "v1")
	assert.ErrorIs(t, err, boom)
	_, err = s.Add(context.Background(), "v1", cart.Entry{ID: 1, Price: 1})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Clear(context.Background(), "v1"), boom)
}

func TestDecode(t *testing.T) {
	entries, err := Decode([]byte(`[{"id":3,"name":"Búp bê","price":150000,"quantity":2,"image":"img/doll.jpg"}]`))
	require.NoError(t, err)
	assert.Equal(t, []cart.Entry{{ID: 3, Name: "Búp bê", Price: 150000, Quantity: 2, Image: "img/doll.jpg"}}, entries)

	entries, err = Decode([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = Decode([]byte(`[{"id":"3"}]`))
	assert.ErrorIs(t, err, ErrMalformedEntry)
}
