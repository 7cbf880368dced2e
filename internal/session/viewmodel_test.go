package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewModel_FreshSession(t *testing.T) {
	s := New()
	vm := s.ViewModel()

	assert.True(t, vm.CanCreateDatabase)
	assert.False(t, vm.CanRunLoadgen)
	assert.False(t, vm.CanOpenLoadgenUI)
	assert.False(t, vm.CanOpenObservability)
	assert.Equal(t, "Not created", vm.DBStatusText)
	assert.Equal(t, "Not started", vm.LoadgenStatusText)
	assert.Equal(t, HighlightDB, vm.Highlight)
}

func TestViewModel_CreatingDatabase(t *testing.T) {
	db := "db_abc0123456789def0"
	s := &Session{Status: StatusCreatingDatabase, DB: &db}
	vm := s.ViewModel()

	require.False(t, vm.CanCreateDatabase)
	assert.Equal(t, "Creating", vm.DBStatusText)
	assert.False(t, vm.CanOpenObservability)
	assert.Equal(t, HighlightDB, vm.Highlight)
}

func TestViewModel_DatabaseCreatedSuggestsLoadgen(t *testing.T) {
	db := "db_abc0123456789def0"
	s := &Session{Status: StatusNormal, DB: &db}
	vm := s.ViewModel()

	assert.Equal(t, "Created", vm.DBStatusText)
	assert.True(t, vm.CanRunLoadgen)
	assert.True(t, vm.CanOpenObservability)
	assert.Equal(t, "Click on 'Run Loadgen'", vm.Suggestion)
	assert.Equal(t, HighlightLoadgen, vm.Highlight)
}

func TestViewModel_StartingLoadgen(t *testing.T) {
	db := "db_abc0123456789def0"
	offset := 0
	s := &Session{Status: StatusStartingLoadgen, DB: &db, LoadgenPortOffset: &offset}
	vm := s.ViewModel()

	assert.False(t, vm.CanRunLoadgen)
	assert.Equal(t, "Starting", vm.LoadgenStatusText)
	assert.Equal(t, HighlightLoadgen, vm.Highlight)
}

func TestViewModel_LoadgenRunning(t *testing.T) {
	db := "db_abc0123456789def0"
	s := &Session{Status: StatusNormal, DB: &db, LoadgenPids: []int{111, 222, 333}}
	vm := s.ViewModel()

	assert.True(t, vm.CanOpenLoadgenUI)
	assert.False(t, vm.CanRunLoadgen)
	assert.Equal(t, "Running", vm.LoadgenStatusText)
	assert.Equal(t, HighlightLatency, vm.Highlight)
}

func TestViewModel_IsPureAcrossCalls(t *testing.T) {
	db := "db_abc0123456789def0"
	s := &Session{Status: StatusNormal, DB: &db, LoadgenPids: []int{1}}
	first := s.ViewModel()
	second := s.ViewModel()
	assert.Equal(t, first, second)
}
