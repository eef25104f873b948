package model

type Connector struct {
	ID   string
	Name string
}

type ResolutionStatus string

const (
	ResolutionMatched        ResolutionStatus = "matched"
	ResolutionAmbiguous      ResolutionStatus = "ambiguous"
	ResolutionSessionDefault ResolutionStatus = "session_default"
	ResolutionNone           ResolutionStatus = "none"
)

type ResolutionSource string

const (
	SourceAlias   ResolutionSource = "alias"
	SourceCatalog ResolutionSource = "catalog"
	SourceSession ResolutionSource = "session"
)

// ConnectorResolution is the outcome of mapping message text to connectors.
type ConnectorResolution struct {
	Status       ResolutionStatus
	ConnectorIDs []string
	Confidence   float64
	Source       ResolutionSource
	Candidates   []Connector
}

// Usable reports whether the resolution should be attached to a new task.
func (r ConnectorResolution) Usable() bool {
	return (r.Status == ResolutionMatched || r.Status == ResolutionSessionDefault) && len(r.ConnectorIDs) > 0
}
