package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartsNormalWithNoOptionalFields(t *testing.T) {
	s := New()
	assert.Equal(t, StatusNormal, s.Status)
	assert.Nil(t, s.UserMessage)
	assert.Nil(t, s.DB)
	assert.Nil(t, s.LoadgenPortOffset)
	assert.Nil(t, s.LoadgenPids)
}

func TestClone_CopiesSlicesAndPointersIndependently(t *testing.T) {
	offset := 4
	s := &Session{
		Status:            StatusStartingLoadgen,
		LoadgenPortOffset: &offset,
		LoadgenPids:       []int{111, 222},
	}

	c := s.Clone()
	require.NotNil(t, c.LoadgenPortOffset)
	assert.Equal(t, offset, *c.LoadgenPortOffset)
	assert.Equal(t, []int{111, 222}, c.LoadgenPids)

	*c.LoadgenPortOffset = 9
	c.LoadgenPids[0] = 999
	assert.Equal(t, 4, *s.LoadgenPortOffset)
	assert.Equal(t, 111, s.LoadgenPids[0])
}

func TestClone_LeavesNilOptionalFieldsNil(t *testing.T) {
	s := New()
	c := s.Clone()
	assert.Nil(t, c.LoadgenPortOffset)
	assert.Nil(t, c.LoadgenPids)
}

func TestGrafanaKeyName_IsUnexportedFromClone(t *testing.T) {
	s := New()
	s.SetGrafanaKeyName("demo-viewer-abc123")
	assert.Equal(t, "demo-viewer-abc123", s.GrafanaKeyName())

	// Clone never carries the transient Grafana key: it is not part of the
	// persisted-document projection (spec.md §3).
	c := s.Clone()
	assert.Empty(t, c.GrafanaKeyName())
}

func TestLockUnlock_RoundTrips(t *testing.T) {
	s := New()
	s.Lock()
	s.Unlock()
}
