// Package retry implements the retry/quarantine manager of §4.4: error
// classification, backoff scheduling, DLQ routing, triage-state mapping,
// and the two operator-facing triage operations.
package retry

import (
	"strings"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

// substringClassifiers is consulted when an error arrives unclassified
// (no *domain.Error in its chain) — e.g. directly from a third-party client.
// Matching is case-insensitive and checked in declaration order.
var substringClassifiers = []struct {
	substr string
	kind   domain.ErrorKind
}{
	{"connection reset", domain.KindTransientNetwork},
	{"connection refused", domain.KindTransientNetwork},
	{"timeout", domain.KindTimeout},
	{"deadline exceeded", domain.KindTimeout},
	{"rate limit", domain.KindTransientNetwork},
	{"unavailable", domain.KindTransientNetwork},
	{"temporarily", domain.KindTransientResource},
	{"busy", domain.KindTransientResource},
	{"gpu", domain.KindTransientResource},
	{"out of memory", domain.KindTransientResource},
	{"unsupported codec", domain.KindMediaFormat},
	{"corrupt", domain.KindMediaFormat},
	{"unsupported format", domain.KindMediaFormat},
	{"model not found", domain.KindEngineConfig},
	{"invalid parameter", domain.KindEngineConfig},
	{"permission denied", domain.KindPermanentDownstream},
	{"quota exceeded", domain.KindPermanentDownstream},
	{"forbidden", domain.KindPermanentDownstream},
}

// Classify returns the ErrorKind of err, preferring an explicit
// *domain.Error classification and falling back to a substring match on the
// error message, per §4.4.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	if kind := domain.KindOf(err); kind != domain.KindInternal {
		return kind
	}
	msg := strings.ToLower(err.Error())
	for _, c := range substringClassifiers {
		if strings.Contains(msg, c.substr) {
			return c.kind
		}
	}
	return domain.KindInternal
}

// TriageInfo is the triage-state/recommended-action pair for a terminal kind.
type TriageInfo struct {
	State  domain.TriageState
	Action string
}

var triageTable = map[domain.ErrorKind]TriageInfo{
	domain.KindMediaFormat:         {domain.TriageNeedsMediaFix, "Re-encode with supported codec or repair corruption"},
	domain.KindEngineConfig:        {domain.TriageNeedsEngineTuning, "Review engine configuration or choose alternative engine"},
	domain.KindPermanentDownstream: {domain.TriageQuarantined, "Manual investigation required"},
}

// exhaustedTriage is used when a retryable kind exhausts its retry budget.
var exhaustedTriage = TriageInfo{domain.TriageQuarantined, "Manual investigation — retries exhausted"}

// TriageFor maps a terminal error kind to its triage-state and recommended
// action. exhausted selects the retries-exhausted variant for retryable kinds.
func TriageFor(kind domain.ErrorKind, exhausted bool) TriageInfo {
	if info, ok := triageTable[kind]; ok {
		return info
	}
	if exhausted {
		return exhaustedTriage
	}
	return exhaustedTriage
}
