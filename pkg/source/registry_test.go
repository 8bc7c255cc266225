package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/dialect"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	d, _ := dialect.Get(dialect.Postgres)
	entry := &Entry{ID: "src1", Kind: dialect.Postgres, Descriptor: d}

	r.Add(entry)

	got, ok := r.Get("src1")
	require.True(t, ok)
	assert.Equal(t, dialect.Postgres, got.Kind)

	r.Remove("src1")
	_, ok = r.Get("src1")
	assert.False(t, ok)
}

func TestRegistryAddReplacesAndClosesPrior(t *testing.T) {
	r := NewRegistry()
	closed := false
	old := &Entry{ID: "src1", close: func() error { closed = true; return nil }}
	r.Add(old)

	r.Add(&Entry{ID: "src1"})

	assert.True(t, closed)
}

func TestRegistryAllReturnsEverySource(t *testing.T) {
	r := NewRegistry()
	r.Add(&Entry{ID: "a"})
	r.Add(&Entry{ID: "b"})

	all := r.All()
	assert.Len(t, all, 2)
}

func TestRegistryCloseClosesEverySource(t *testing.T) {
	r := NewRegistry()
	var closedCount int
	r.Add(&Entry{ID: "a", close: func() error { closedCount++; return nil }})
	r.Add(&Entry{ID: "b", close: func() error { closedCount++; return nil }})

	r.Close()

	assert.Equal(t, 2, closedCount)
	assert.Empty(t, r.All())
}
