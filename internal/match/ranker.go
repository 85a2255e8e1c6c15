package match

import (
	"math"
	"sort"
	"strings"

	"specforge/pkg/domain"
)

// OverrideSource resolves exact raw-name overrides. domain.TransactionView
// and the in-memory store satisfy it directly; persistent stores are adapted
// through their transaction view.
type OverrideSource interface {
	FindManualOverride(extractedName string) (domain.ManualOverride, bool)
}

// NoOverrides is an OverrideSource with no entries.
var NoOverrides OverrideSource = noOverrides{}

type noOverrides struct{}

func (noOverrides) FindManualOverride(string) (domain.ManualOverride, bool) {
	return domain.ManualOverride{}, false
}

// Fixed tier scores for non-fuzzy candidates.
const (
	scoreExact     = 1.0
	scoreSubstring = 0.8
)

// Ranker scores raw extracted names against catalogue entries.
type Ranker struct {
	cfg       Config
	normalize Normalizer
}

// NewRanker builds a ranker with the supplied thresholds.
func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg, normalize: Normalize}
}

// Rank returns up to MaxCandidates catalogue candidates for the raw name,
// scores descending. Ties keep catalogue order. An override whose raw key
// equals the name short-circuits to a single full-score candidate; an
// override naming a missing entry is ignored and scoring proceeds.
func (r *Ranker) Rank(raw string, catalogue []domain.CatalogueEntry, overrides OverrideSource) []domain.MatchCandidate {
	query := r.normalize(raw)
	if query == "" {
		return nil
	}

	if overrides != nil {
		if ov, ok := overrides.FindManualOverride(raw); ok {
			for _, entry := range catalogue {
				if entry.ID == ov.CatalogueID {
					return []domain.MatchCandidate{{
						Entry:  entry,
						Score:  scoreExact,
						Reason: domain.MatchReason{Kind: domain.ReasonManualOverride},
					}}
				}
			}
		}
	}

	var candidates []domain.MatchCandidate
	for _, entry := range catalogue {
		name := r.normalize(entry.AnalysisName + " " + entry.ComponentName)
		code := r.normalize(entry.TestCode)

		var score float64
		var reason domain.MatchReason
		switch {
		case query == name || (code != "" && query == code):
			score = scoreExact
			reason = domain.MatchReason{Kind: domain.ReasonExactMatch}
		case name != "" && (strings.Contains(name, query) || strings.Contains(query, name)):
			score = scoreSubstring
			reason = domain.MatchReason{Kind: domain.ReasonSubstringMatch}
		default:
			sim := Similarity(query, name)
			if sim > r.cfg.FuzzyFloor {
				score = sim
				reason = domain.MatchReason{Kind: domain.ReasonFuzzy, Percent: int(math.Round(sim * 100))}
			}
		}

		if score > 0 {
			candidates = append(candidates, domain.MatchCandidate{Entry: entry, Score: score, Reason: reason})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}
	return candidates
}

// Confident reports whether the top candidate resolves without operator
// review: score at or above the auto-accept threshold, or a manual override.
func (r *Ranker) Confident(candidates []domain.MatchCandidate) bool {
	if len(candidates) == 0 {
		return false
	}
	top := candidates[0]
	return top.Score >= r.cfg.AutoAcceptThreshold || top.Reason.Kind == domain.ReasonManualOverride
}
