package ui

import (
	"github.com/obsproc/quicklook/internal/pipeline"
)

// Messages for Bubble Tea

// TickMsg drives the periodic poll of background work.
type TickMsg struct{}

// BuildDoneMsg is sent when an array build request finishes.
type BuildDoneMsg struct {
	Visit  int
	Panels []pipeline.ReducedPanel
	Err    error
}

// VisitLoadedMsg is sent when a visit's fiber configuration has been
// loaded into the session.
type VisitLoadedMsg struct {
	Visit int
	Err   error
}

// StoreChangedMsg is sent when the registry file changes on disk and a
// re-discovery is warranted.
type StoreChangedMsg struct{}
