package models

import "time"

// RequestContext carries optional attributes supplied alongside a log batch.
type RequestContext struct {
	Environment string
	Version     string
	Timestamp   time.Time
}

// IncidentRequest is an accepted failure-log batch awaiting analysis.
// Instances are treated as immutable once accepted; the API layer copies
// slices before handing the request to the dispatcher.
type IncidentRequest struct {
	TenantID     string
	AppID        string
	Service      string
	LogLines     []string
	Context      RequestContext
	DocumentIDs  []string
	SeverityHint string
}

// Clone returns a defensive copy so callers cannot mutate an accepted request.
func (r IncidentRequest) Clone() IncidentRequest {
	out := r
	out.LogLines = append([]string(nil), r.LogLines...)
	out.DocumentIDs = append([]string(nil), r.DocumentIDs...)
	return out
}
