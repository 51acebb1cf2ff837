package wake_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tendermint/alarm/wake"
)

func TestIDPoolLowestFree(t *testing.T) {
	pool := wake.NewIDPool(0)

	for want := 0; want < 4; want++ {
		id, err := pool.Acquire()
		require.NoError(t, err)
		require.Equal(t, want, id)
	}

	require.True(t, pool.Release(1))
	require.False(t, pool.Release(1))
	require.False(t, pool.Release(-1))
	require.False(t, pool.Release(42))

	id, err := pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, id)

	id, err = pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, 4, id)
	require.Equal(t, 5, pool.Len())
}

func TestIDPoolBounded(t *testing.T) {
	pool := wake.NewIDPool(2)

	_, err := pool.Acquire()
	require.NoError(t, err)
	_, err = pool.Acquire()
	require.NoError(t, err)

	_, err = pool.Acquire()
	require.ErrorIs(t, err, wake.ErrExhausted)

	require.True(t, pool.Release(0))
	id, err := pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, id)
}

func TestIDPoolProperties(t *testing.T) {
	rapid.Check(t, rapid.Run(&idPoolModel{}))
}

type idPoolModel struct {
	pool *wake.IDPool
	size int

	held map[int]bool
}

func (m *idPoolModel) Init(t *rapid.T) {
	m.size = rapid.IntRange(0, 8).Draw(t, "size").(int)
	m.pool = wake.NewIDPool(m.size)
	m.held = map[int]bool{}
}

func (m *idPoolModel) Acquire(t *rapid.T) {
	id, err := m.pool.Acquire()
	if m.size > 0 && len(m.held) >= m.size {
		require.ErrorIs(t, err, wake.ErrExhausted)
		return
	}
	require.NoError(t, err)

	want := 0
	for m.held[want] {
		want++
	}
	require.Equal(t, want, id)
	m.held[id] = true
}

func (m *idPoolModel) Release(t *rapid.T) {
	if len(m.held) == 0 {
		id := rapid.IntRange(-1, 16).Draw(t, "unheld").(int)
		require.False(t, m.pool.Release(id))
		return
	}

	ids := m.heldIDs()
	id := ids[rapid.IntRange(0, len(ids)-1).Draw(t, "index").(int)]
	require.True(t, m.pool.Release(id))
	delete(m.held, id)
}

func (m *idPoolModel) Check(t *rapid.T) {
	require.Equal(t, len(m.held), m.pool.Len())
}

func (m *idPoolModel) heldIDs() []int {
	ids := make([]int, 0, len(m.held))
	for id := range m.held {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
