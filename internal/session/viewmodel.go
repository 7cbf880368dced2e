package session

// ViewModel is the pure, display-ready projection of a Session (spec.md §4.6).
type ViewModel struct {
	CanCreateDatabase    bool         `json:"can_create_database"`
	CanRunLoadgen        bool         `json:"can_run_loadgen"`
	CanOpenLoadgenUI     bool         `json:"can_open_loadgen_ui"`
	CanOpenObservability bool         `json:"can_open_observability"`
	DBStatusText         string       `json:"db_status_text"`
	LoadgenStatusText    string       `json:"locust_status_text"`
	Suggestion           string       `json:"suggestion"`
	Highlight            string       `json:"highlight"`
	UserMessage          *UserMessage `json:"user_message,omitempty"`
}

// Highlight tokens (spec.md §4.6).
const (
	HighlightNone    = "none"
	HighlightDB      = "db"
	HighlightLoadgen = "loadgen"
	HighlightLatency = "latency"
)

// ViewModel derives the display-ready record from the session's fields. It
// is a pure function: no I/O, no locking (the caller holds the session lock
// while reading the fields it passes in).
func (s *Session) ViewModel() ViewModel {
	vm := ViewModel{
		CanCreateDatabase: s.Status == StatusNormal && s.DB == nil,
		CanRunLoadgen:     s.Status == StatusNormal && s.DB != nil && s.LoadgenPids == nil,
		CanOpenLoadgenUI:  s.Status == StatusNormal && s.DB != nil && s.LoadgenPids != nil,
		UserMessage:       s.UserMessage,
	}

	switch {
	case s.DB == nil:
		vm.DBStatusText = "Not created"
	case s.Status == StatusCreatingDatabase:
		vm.DBStatusText = "Creating"
	default:
		vm.DBStatusText = "Created"
	}
	vm.CanOpenObservability = vm.DBStatusText == "Created"

	switch {
	case s.Status == StatusStartingLoadgen:
		vm.LoadgenStatusText = "Starting"
	case s.LoadgenPids != nil:
		vm.LoadgenStatusText = "Running"
	default:
		vm.LoadgenStatusText = "Not started"
	}

	switch {
	case vm.CanCreateDatabase:
		vm.Suggestion = "Click on 'Create Database'"
		vm.Highlight = HighlightDB
	case s.Status == StatusCreatingDatabase:
		vm.Suggestion = "Wait for database creation to finish"
		vm.Highlight = HighlightDB
	case vm.CanRunLoadgen:
		vm.Suggestion = "Click on 'Run Loadgen'"
		vm.Highlight = HighlightLoadgen
	case s.Status == StatusStartingLoadgen:
		vm.Suggestion = "Wait for load generator to start"
		vm.Highlight = HighlightLoadgen
	case vm.CanOpenLoadgenUI:
		vm.Suggestion = "Open the Loadgen UI to watch live throughput"
		vm.Highlight = HighlightLatency
	default:
		vm.Suggestion = ""
		vm.Highlight = HighlightNone
	}

	return vm
}
