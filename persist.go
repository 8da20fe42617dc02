package ebb

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// documentVersion is the current SaveState format.
const documentVersion = 1

// timestampLayouts are accepted when loading, most specific first. Layouts
// without an offset are read in UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// document is the serialized form of a Scheduler.
type document struct {
	Version int         `json:"version"`
	SavedAt string      `json:"saved_at"`
	Params  Params      `json:"params"`
	Topics  []topicDoc  `json:"topics"`
	Ledger  []reviewDoc `json:"ledger"`
}

type topicDoc struct {
	TopicID          string  `json:"topic_id"`
	DecayRate        float64 `json:"decay_rate"`
	DifficultyFactor float64 `json:"difficulty_factor"`
	LastStrength     float64 `json:"last_strength"`
	ReviewCount      int     `json:"review_count"`
	LastReviewTime   string  `json:"last_review_time"`
	LastPerformance  float64 `json:"last_performance"`
	NextReviewTime   *string `json:"next_review_time,omitempty"`
}

type reviewDoc struct {
	TopicID               string  `json:"topic_id"`
	ReviewTime            string  `json:"review_time"`
	PerformanceScore      float64 `json:"performance_score"`
	StrengthBefore        float64 `json:"strength_before"`
	StrengthAfter         float64 `json:"strength_after"`
	DifficultyFactorAfter float64 `json:"difficulty_factor_after"`
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// SaveState writes the global params, every topic's state and the full
// review ledger to w as an indented JSON document. Timestamps are
// ISO-8601 strings.
func (s *Scheduler) SaveState(w io.Writer) error {
	doc := document{
		Version: documentVersion,
		SavedAt: formatTime(s.clock()),
		Params:  s.Params(),
		Topics:  []topicDoc{},
		Ledger:  []reviewDoc{},
	}

	for _, st := range s.store.Snapshot() {
		td := topicDoc{
			TopicID:          st.TopicID,
			DecayRate:        st.DecayRate,
			DifficultyFactor: st.DifficultyFactor,
			LastStrength:     st.LastStrength,
			ReviewCount:      st.ReviewCount,
			LastReviewTime:   formatTime(st.LastReviewTime),
			LastPerformance:  st.LastPerformance,
		}
		if st.NextReviewTime != nil {
			next := formatTime(*st.NextReviewTime)
			td.NextReviewTime = &next
		}
		doc.Topics = append(doc.Topics, td)
	}

	for _, ev := range s.ledger.All() {
		doc.Ledger = append(doc.Ledger, reviewDoc{
			TopicID:               ev.TopicID,
			ReviewTime:            formatTime(ev.ReviewTime),
			PerformanceScore:      ev.PerformanceScore,
			StrengthBefore:        ev.StrengthBefore,
			StrengthAfter:         ev.StrengthAfter,
			DifficultyFactorAfter: ev.DifficultyFactorAfter,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return nil
}

// LoadState replaces the scheduler's params, topic state and ledger with
// the document read from r.
//
// Malformed timestamps are replaced by the current time and logged.
// Malformed or out-of-range numeric fields, duplicate topics and invalid
// params fail with ErrStateCorruption, and nothing is applied.
func (s *Scheduler) LoadState(r io.Reader) error {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrStateCorruption, err)
	}

	params := doc.Params.withDefaults()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateCorruption, err)
	}

	now := s.clock()
	parse := func(field, topicID, raw string) time.Time {
		t, err := parseTimestamp(raw)
		if err != nil {
			s.log.Warn().
				Str("field", field).
				Str("topic", topicID).
				Str("value", raw).
				Msg("malformed timestamp in saved state, using current time")
			return now
		}
		return t
	}

	states := make([]TopicState, 0, len(doc.Topics))
	seen := make(map[string]struct{}, len(doc.Topics))
	for i, td := range doc.Topics {
		if err := td.validate(); err != nil {
			return fmt.Errorf("%w: topic %d: %v", ErrStateCorruption, i, err)
		}
		if _, dup := seen[td.TopicID]; dup {
			return fmt.Errorf("%w: duplicate topic %q", ErrStateCorruption, td.TopicID)
		}
		seen[td.TopicID] = struct{}{}

		st := TopicState{
			TopicID:          td.TopicID,
			DecayRate:        td.DecayRate,
			DifficultyFactor: td.DifficultyFactor,
			LastStrength:     td.LastStrength,
			ReviewCount:      td.ReviewCount,
			LastReviewTime:   parse("last_review_time", td.TopicID, td.LastReviewTime),
			LastPerformance:  td.LastPerformance,
		}
		if td.NextReviewTime != nil {
			next := parse("next_review_time", td.TopicID, *td.NextReviewTime)
			st.NextReviewTime = &next
		}
		states = append(states, st)
	}

	events := make([]ReviewEvent, 0, len(doc.Ledger))
	for i, rd := range doc.Ledger {
		if err := rd.validate(); err != nil {
			return fmt.Errorf("%w: ledger entry %d: %v", ErrStateCorruption, i, err)
		}
		events = append(events, ReviewEvent{
			TopicID:               rd.TopicID,
			ReviewTime:            parse("review_time", rd.TopicID, rd.ReviewTime),
			PerformanceScore:      rd.PerformanceScore,
			StrengthBefore:        rd.StrengthBefore,
			StrengthAfter:         rd.StrengthAfter,
			DifficultyFactorAfter: rd.DifficultyFactorAfter,
		})
	}

	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	s.store.Replace(states)
	s.ledger.Replace(events)

	s.log.Info().
		Int("topics", len(states)).
		Int("events", len(events)).
		Msg("state loaded")
	return nil
}

// parseTimestamp reads an ISO-8601 timestamp in any accepted layout.
func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (td topicDoc) validate() error {
	if td.TopicID == "" {
		return fmt.Errorf("empty topic id")
	}
	if !finite(td.DecayRate) || td.DecayRate <= 0 {
		return fmt.Errorf("decay_rate %v must be positive", td.DecayRate)
	}
	if !finite(td.DifficultyFactor) || td.DifficultyFactor < MinDifficulty || td.DifficultyFactor > MaxDifficulty {
		return fmt.Errorf("difficulty_factor %v outside [%v, %v]", td.DifficultyFactor, MinDifficulty, MaxDifficulty)
	}
	if !unit(td.LastStrength) {
		return fmt.Errorf("last_strength %v outside [0, 1]", td.LastStrength)
	}
	if !unit(td.LastPerformance) {
		return fmt.Errorf("last_performance %v outside [0, 1]", td.LastPerformance)
	}
	if td.ReviewCount < 0 {
		return fmt.Errorf("review_count %d is negative", td.ReviewCount)
	}
	return nil
}

func (rd reviewDoc) validate() error {
	if rd.TopicID == "" {
		return fmt.Errorf("empty topic id")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"performance_score", rd.PerformanceScore},
		{"strength_before", rd.StrengthBefore},
		{"strength_after", rd.StrengthAfter},
	} {
		if !unit(f.v) {
			return fmt.Errorf("%s %v outside [0, 1]", f.name, f.v)
		}
	}
	if !finite(rd.DifficultyFactorAfter) || rd.DifficultyFactorAfter < MinDifficulty || rd.DifficultyFactorAfter > MaxDifficulty {
		return fmt.Errorf("difficulty_factor_after %v outside [%v, %v]", rd.DifficultyFactorAfter, MinDifficulty, MaxDifficulty)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unit(v float64) bool {
	return finite(v) && v >= 0 && v <= 1
}
