package match

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults for ranking thresholds. Deployments tune them through the
// SPECFORGE_MATCH_* environment variables without code changes.
const (
	DefaultAutoAcceptThreshold = 0.9
	DefaultFuzzyFloor          = 0.4
	DefaultMaxCandidates       = 3
)

// Config carries the tunable knobs of the ranker.
type Config struct {
	// AutoAcceptThreshold is the minimum top score at which the resolution
	// workflow accepts a match without operator review.
	AutoAcceptThreshold float64
	// FuzzyFloor is the exclusive lower bound a similarity score must clear
	// to appear as a fuzzy candidate.
	FuzzyFloor float64
	// MaxCandidates caps the ranked list length.
	MaxCandidates int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AutoAcceptThreshold: DefaultAutoAcceptThreshold,
		FuzzyFloor:          DefaultFuzzyFloor,
		MaxCandidates:       DefaultMaxCandidates,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by environment variables.
//
//	SPECFORGE_MATCH_AUTO_ACCEPT: top score confidence threshold (default 0.9)
//	SPECFORGE_MATCH_FUZZY_FLOOR: minimum fuzzy similarity (default 0.4)
//	SPECFORGE_MATCH_MAX_CANDIDATES: ranked list cap (default 3)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if raw := os.Getenv("SPECFORGE_MATCH_AUTO_ACCEPT"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECFORGE_MATCH_AUTO_ACCEPT: %w", err)
		}
		cfg.AutoAcceptThreshold = v
	}
	if raw := os.Getenv("SPECFORGE_MATCH_FUZZY_FLOOR"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECFORGE_MATCH_FUZZY_FLOOR: %w", err)
		}
		cfg.FuzzyFloor = v
	}
	if raw := os.Getenv("SPECFORGE_MATCH_MAX_CANDIDATES"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECFORGE_MATCH_MAX_CANDIDATES: %w", err)
		}
		cfg.MaxCandidates = v
	}
	return cfg, nil
}
