package domain

// assetTransitions enumerates the legal AssetStatus transitions of §4.1's
// state machine. The terminal states (INDEXED, DELETED, FAILED) still have
// outgoing edges: INDEXED can move to DELETED or PENDING_RETRY, FAILED can
// move to PENDING_RETRY (triage retry) or DELETED, and DELETED can move to
// INGESTED.
var assetTransitions = map[AssetStatus][]AssetStatus{
	StatusIngested:     {StatusTranscribing, StatusPendingRetry, StatusQuarantined, StatusDeleted},
	StatusTranscribing: {StatusTranscribed, StatusPendingRetry, StatusQuarantined, StatusDeleted},
	StatusTranscribed:  {StatusIndexed, StatusPendingRetry, StatusQuarantined, StatusDeleted},
	StatusIndexed:      {StatusDeleted, StatusPendingRetry},
	StatusPendingRetry: {StatusTranscribing, StatusQuarantined, StatusDeleted},
	StatusQuarantined:  {StatusPendingRetry, StatusFailed, StatusDeleted},
	StatusFailed:       {StatusPendingRetry, StatusDeleted},
	StatusDeleted:      {StatusIngested},
}

// CanTransition reports whether from → to is a legal asset status edge.
func CanTransition(from, to AssetStatus) bool {
	if from == to {
		return true
	}
	for _, next := range assetTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no further automatic transitions
// (INDEXED and DELETED are steady states; FAILED is operator-terminal).
func IsTerminal(s AssetStatus) bool {
	return s == StatusIndexed || s == StatusDeleted || s == StatusFailed
}

// IsVersionProcessed reports whether a version has already passed through
// the orchestrator, satisfying the idempotency gate of §4.2 phase 1: the
// version's processing status is TRANSCRIBED or INDEXED, or its publish
// state has already moved past STAGING.
func IsVersionProcessed(v AssetVersion) bool {
	switch v.ProcessingStatus {
	case StatusTranscribed, StatusIndexed:
		return true
	}
	return v.PublishState == ActiveState || v.PublishState == ArchivedState
}
