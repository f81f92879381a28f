package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackRegistry(t *testing.T) {
	r := &callbackRegistry{}
	noop := HandlerFunc(func(Message) error { return nil })

	h1 := r.add(noop)
	h2 := r.add(noop)
	h3 := r.add(noop)
	assert.True(t, h1 < h2 && h2 < h3)
	assert.Equal(t, 3, r.len())

	snap := r.snapshot()
	assert.True(t, r.remove(h2))
	assert.False(t, r.remove(h2))
	h4 := r.add(noop)
	assert.Greater(t, h4, h3, "handles are not reused")

	assert.Len(t, snap, 3, "snapshot is unaffected by later changes")
	assert.Equal(t, []Handle{h1, h2, h3}, handles(snap))
	assert.Equal(t, []Handle{h1, h3, h4}, handles(r.snapshot()))
}

func handles(entries []handlerEntry) []Handle {
	out := make([]Handle, len(entries))
	for i, e := range entries {
		out[i] = e.handle
	}
	return out
}

func TestTargetSet(t *testing.T) {
	s := newTargetSet()

	assert.Equal(t, []string{"b", "a"}, s.add([]string{"b", "a", "b", ""}))
	assert.Equal(t, []string{"c"}, s.add([]string{"a", "c"}))
	assert.Nil(t, s.add([]string{"a"}))
	assert.Equal(t, 3, s.len())
	assert.Equal(t, []string{"a", "b", "c"}, s.snapshot())

	assert.Equal(t, []string{"a"}, s.remove([]string{"a", "missing", "a"}))
	assert.False(t, s.contains("a"))
	assert.True(t, s.contains("b"))
	assert.Equal(t, []string{"b", "c"}, s.snapshot())
}
