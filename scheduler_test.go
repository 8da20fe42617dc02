package ebb

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func mustScheduler(t *testing.T, cfg SchedulerConfig) *Scheduler {
	t.Helper()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return t0 }
	}
	s, err := NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func mustReview(t *testing.T, s *Scheduler, topicID string, score float64, at time.Time) TopicState {
	t.Helper()
	st, err := s.RecordReview(topicID, score, at)
	if err != nil {
		t.Fatalf("RecordReview(%q, %v, %v): %v", topicID, score, at, err)
	}
	return st
}

// --- NewScheduler ---

func TestNewSchedulerDefault(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.Params() != DefaultParams {
		t.Errorf("Params() = %+v, want %+v", s.Params(), DefaultParams)
	}
	if s.Location() != time.Local {
		t.Errorf("Location() = %v, want Local", s.Location())
	}
}

func TestNewSchedulerInvalidParams(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{Params: Params{DifficultyFactor: 3}})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("NewScheduler = %v, want ErrInvalidParameters", err)
	}
	_, err = NewScheduler(SchedulerConfig{Params: Params{DecayRate: -1}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewScheduler = %v, want ErrInvalidInput", err)
	}
}

func TestSetParams(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	if err := s.SetParams(Params{DecayRate: 0.25}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	assertFloat(t, "DecayRate", s.Params().DecayRate, 0.25)
	assertFloat(t, "MinStrength", s.Params().MinStrength, 0.2)

	if err := s.SetParams(Params{ReviewBoost: 2}); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("SetParams invalid = %v, want ErrInvalidParameters", err)
	}
	assertFloat(t, "DecayRate unchanged", s.Params().DecayRate, 0.25)
}

// --- RecordReview ---

func TestRecordReviewFirst(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	st := mustReview(t, s, "T1", 1.0, t0)

	if st.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, want 1", st.ReviewCount)
	}
	assertFloat(t, "LastStrength", st.LastStrength, 1.0)
	assertFloat(t, "LastPerformance", st.LastPerformance, 1.0)
	// Strong review eases the topic by 5%.
	assertFloat(t, "DifficultyFactor", st.DifficultyFactor, 0.95)
	if !st.LastReviewTime.Equal(t0) {
		t.Errorf("LastReviewTime = %v, want %v", st.LastReviewTime, t0)
	}

	// next = t0 + ln(1/0.2)/(0.1·0.95) days
	wantDays := math.Log(5) / (0.1 * 0.95)
	if st.NextReviewTime == nil {
		t.Fatal("NextReviewTime is nil")
	}
	gotDays := st.NextReviewTime.Sub(t0).Hours() / 24
	assertFloat(t, "next review days", gotDays, wantDays)

	evs := s.Events("T1")
	if len(evs) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(evs))
	}
	assertFloat(t, "StrengthBefore", evs[0].StrengthBefore, 1.0)
	assertFloat(t, "StrengthAfter", evs[0].StrengthAfter, 1.0)
	assertFloat(t, "DifficultyFactorAfter", evs[0].DifficultyFactorAfter, 0.95)
}

func TestRecordReviewBoostsDecayedStrength(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	mustReview(t, s, "T1", 0.7, t0)

	at := t0.Add(10 * day)
	before, err := s.CurrentStrength("T1", at)
	if err != nil {
		t.Fatalf("CurrentStrength: %v", err)
	}
	st := mustReview(t, s, "T1", 0.6, at)

	want := before + (1-before)*0.5*0.6
	assertFloat(t, "LastStrength", st.LastStrength, want)

	evs := s.Events("T1")
	assertFloat(t, "StrengthBefore", evs[1].StrengthBefore, before)
	assertFloat(t, "StrengthAfter", evs[1].StrengthAfter, want)
}

func TestRecordReviewNeverDecreasesStrength(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	scores := []float64{0, 0.2, 0.5, 0.9, 0.1, 1, 0.4, 0.8}
	at := t0
	for i, score := range scores {
		mustReview(t, s, "T1", score, at)
		ev := s.Events("T1")[i]
		if ev.StrengthAfter < ev.StrengthBefore {
			t.Errorf("review %d: after %.4f < before %.4f", i, ev.StrengthAfter, ev.StrengthBefore)
		}
		at = at.Add(time.Duration(i+1) * 19 * time.Hour)
	}
}

func TestRecordReviewDifficultyThreeWeak(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	var st TopicState
	for i := 0; i < 3; i++ {
		st = mustReview(t, s, "T1", 0.3, t0.Add(time.Duration(i)*day))
	}
	assertFloat(t, "DifficultyFactor", st.DifficultyFactor, 1.331)
}

func TestRecordReviewDifficultyBounds(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	at := t0
	for i := 0; i < 40; i++ {
		st := mustReview(t, s, "hard", 0, at)
		if st.DifficultyFactor < MinDifficulty || st.DifficultyFactor > MaxDifficulty {
			t.Fatalf("review %d: difficulty %.4f out of bounds", i, st.DifficultyFactor)
		}
		st = mustReview(t, s, "easy", 1, at)
		if st.DifficultyFactor < MinDifficulty || st.DifficultyFactor > MaxDifficulty {
			t.Fatalf("review %d: difficulty %.4f out of bounds", i, st.DifficultyFactor)
		}
		at = at.Add(12 * time.Hour)
	}
	hard, _ := s.Topic("hard")
	easy, _ := s.Topic("easy")
	assertFloat(t, "hard ceiling", hard.DifficultyFactor, MaxDifficulty)
	assertFloat(t, "easy floor", easy.DifficultyFactor, MinDifficulty)
}

func TestRecordReviewInvalidScore(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	for _, score := range []float64{-0.1, 1.01, math.NaN(), math.Inf(1)} {
		_, err := s.RecordReview("T1", score, t0)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("RecordReview(score=%v) = %v, want ErrInvalidInput", score, err)
		}
	}
	if _, ok := s.Topic("T1"); ok {
		t.Error("rejected review should not create state")
	}
	if n := len(s.AllEvents()); n != 0 {
		t.Errorf("rejected review appended %d events", n)
	}
}

func TestRecordReviewEmptyTopic(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	if _, err := s.RecordReview("", 0.5, t0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("RecordReview(\"\") = %v, want ErrInvalidInput", err)
	}
}

func TestRecordReviewClockSkew(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	first := mustReview(t, s, "T1", 0.9, t0)

	_, err := s.RecordReview("T1", 0.9, t0.Add(-time.Minute))
	if !errors.Is(err, ErrClockSkew) {
		t.Fatalf("RecordReview in the past = %v, want ErrClockSkew", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ErrClockSkew should be an ErrInvalidInput")
	}

	st, _ := s.Topic("T1")
	if st.ReviewCount != first.ReviewCount || st.DifficultyFactor != first.DifficultyFactor {
		t.Errorf("state mutated by rejected review: %+v", st)
	}
	if n := len(s.Events("T1")); n != 1 {
		t.Errorf("len(Events) = %d, want 1", n)
	}

	// Same instant is allowed.
	mustReview(t, s, "T1", 0.9, t0)
}

func TestRecordReviewZeroTimeUsesClock(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	st := mustReview(t, s, "T1", 0.5, time.Time{})
	if !st.LastReviewTime.Equal(t0) {
		t.Errorf("LastReviewTime = %v, want clock time %v", st.LastReviewTime, t0)
	}
}

func TestRecordReviewUsesGlobalParamsOnCreate(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{Params: Params{DecayRate: 0.3, DifficultyFactor: 1.5}})
	st := mustReview(t, s, "T1", 0.6, t0)
	assertFloat(t, "DecayRate", st.DecayRate, 0.3)
	assertFloat(t, "DifficultyFactor", st.DifficultyFactor, 1.5)
}

type failingLedger struct {
	*MemoryLedger
}

func (failingLedger) Append(ReviewEvent) error { return errors.New("disk full") }

func TestRecordReviewLedgerFailure(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{Ledger: failingLedger{NewMemoryLedger()}})
	if _, err := s.RecordReview("T1", 0.5, t0); err == nil {
		t.Fatal("RecordReview should fail when the ledger rejects the event")
	}
	if _, ok := s.Topic("T1"); ok {
		t.Error("state should not be created when the ledger append fails")
	}
}

func TestRecordReviewConcurrentSameTopic(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordReview("shared", 0.7, t0); err != nil {
				t.Errorf("RecordReview: %v", err)
			}
		}()
	}
	wg.Wait()

	st, _ := s.Topic("shared")
	if st.ReviewCount != n {
		t.Errorf("ReviewCount = %d, want %d", st.ReviewCount, n)
	}
	if got := len(s.Events("shared")); got != n {
		t.Errorf("len(Events) = %d, want %d", got, n)
	}
}

func TestRecordReviewConcurrentTopics(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	topics := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	for _, id := range topics {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			at := t0
			for j := 0; j < 20; j++ {
				if _, err := s.RecordReview(id, 0.6, at); err != nil {
					t.Errorf("RecordReview(%s): %v", id, err)
				}
				s.DueTopics(at, 0)
				at = at.Add(7 * time.Hour)
			}
		}()
	}
	wg.Wait()

	for _, id := range topics {
		st, ok := s.Topic(id)
		if !ok || st.ReviewCount != 20 {
			t.Errorf("topic %s: ok=%v count=%d, want 20", id, ok, st.ReviewCount)
		}
	}
	if got := len(s.AllEvents()); got != 20*len(topics) {
		t.Errorf("len(AllEvents) = %d, want %d", got, 20*len(topics))
	}
}

// --- PreviewReview ---

func TestPreviewReviewDoesNotMutate(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	mustReview(t, s, "T1", 0.9, t0)

	at := t0.Add(3 * day)
	preview, err := s.PreviewReview("T1", 0.2, at)
	if err != nil {
		t.Fatalf("PreviewReview: %v", err)
	}
	if preview.ReviewCount != 2 {
		t.Errorf("preview ReviewCount = %d, want 2", preview.ReviewCount)
	}

	st, _ := s.Topic("T1")
	if st.ReviewCount != 1 {
		t.Errorf("stored ReviewCount = %d, want 1", st.ReviewCount)
	}
	if n := len(s.Events("T1")); n != 1 {
		t.Errorf("len(Events) = %d, want 1", n)
	}

	actual := mustReview(t, s, "T1", 0.2, at)
	assertFloat(t, "LastStrength", actual.LastStrength, preview.LastStrength)
	assertFloat(t, "DifficultyFactor", actual.DifficultyFactor, preview.DifficultyFactor)
	if !actual.NextReviewTime.Equal(*preview.NextReviewTime) {
		t.Errorf("NextReviewTime = %v, preview %v", actual.NextReviewTime, preview.NextReviewTime)
	}
}

func TestPreviewReviewNewTopic(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	preview, err := s.PreviewReview("fresh", 0.5, t0)
	if err != nil {
		t.Fatalf("PreviewReview: %v", err)
	}
	if preview.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, want 1", preview.ReviewCount)
	}
	if _, ok := s.Topic("fresh"); ok {
		t.Error("preview should not create state")
	}
}

// --- Replay ---

func TestReplayRebuildsState(t *testing.T) {
	src := mustScheduler(t, SchedulerConfig{})
	at := t0
	for i, score := range []float64{0.4, 0.9, 0.6, 1.0} {
		mustReview(t, src, "T1", score, at)
		mustReview(t, src, "T2", 1-score, at.Add(time.Hour))
		at = at.Add(time.Duration(i+2) * day)
	}

	dst := mustScheduler(t, SchedulerConfig{})
	// Reverse the order: Replay sorts by review time.
	evs := src.AllEvents()
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	n, err := dst.Replay(evs)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 8 {
		t.Errorf("applied = %d, want 8", n)
	}

	for _, id := range []string{"T1", "T2"} {
		want, _ := src.Topic(id)
		got, _ := dst.Topic(id)
		assertFloat(t, id+" LastStrength", got.LastStrength, want.LastStrength)
		assertFloat(t, id+" DifficultyFactor", got.DifficultyFactor, want.DifficultyFactor)
		if got.ReviewCount != want.ReviewCount {
			t.Errorf("%s ReviewCount = %d, want %d", id, got.ReviewCount, want.ReviewCount)
		}
	}
}

func TestReplayStopsOnInvalidEvent(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	evs := []ReviewEvent{
		{TopicID: "T1", ReviewTime: t0, PerformanceScore: 0.5},
		{TopicID: "T1", ReviewTime: t0.Add(day), PerformanceScore: 3},
	}
	n, err := s.Replay(evs)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Replay = %v, want ErrInvalidInput", err)
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}
}

// --- Strength / CurrentStrength ---

func TestStrengthScenarioTenDays(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	got := s.Strength("T1", t0, 1, 1.0, t0.Add(10*day))
	if math.Abs(got-0.403) > 1e-3 {
		t.Errorf("Strength(T1, +10d) = %.4f, want ≈ 0.403", got)
	}
}

func TestStrengthFixpointAtReview(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	mustReview(t, s, "T1", 0.8, t0)
	at := t0.Add(5 * day)
	st := mustReview(t, s, "T1", 0.4, at)

	got, err := s.CurrentStrength("T1", at)
	if err != nil {
		t.Fatalf("CurrentStrength: %v", err)
	}
	if got != st.LastStrength {
		t.Errorf("CurrentStrength at review = %v, want exactly %v", got, st.LastStrength)
	}
}

func TestCurrentStrengthMonotonic(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	st := mustReview(t, s, "T1", 0.6, t0)

	prev := st.LastStrength
	for h := 1; h <= 24*60; h += 7 {
		cur, _ := s.CurrentStrength("T1", t0.Add(time.Duration(h)*time.Hour))
		if cur > prev {
			t.Fatalf("strength rose at +%dh: %.6f > %.6f", h, cur, prev)
		}
		if cur < 0 || cur > st.LastStrength {
			t.Fatalf("strength %.6f outside [0, %.6f]", cur, st.LastStrength)
		}
		prev = cur
	}
}

func TestCurrentStrengthBeforeLastReview(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	st := mustReview(t, s, "T1", 0.6, t0)
	got, err := s.CurrentStrength("T1", t0.Add(-day))
	if err != nil {
		t.Fatalf("CurrentStrength: %v", err)
	}
	assertFloat(t, "strength", got, st.LastStrength)
}

func TestCurrentStrengthUnknownTopic(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	_, err := s.CurrentStrength("nope", t0)
	if !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("CurrentStrength(unknown) = %v, want ErrUnknownTopic", err)
	}
}

// --- NextReviewTime ---

func TestNextReviewTimeAlreadyDue(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	mustReview(t, s, "T1", 0.6, t0)
	got, err := s.NextReviewTime("T1", 0.15, 0, t0)
	if err != nil {
		t.Fatalf("NextReviewTime: %v", err)
	}
	if want := t0.Add(6 * time.Hour); !got.Equal(want) {
		t.Errorf("NextReviewTime = %v, want %v", got, want)
	}
}

func TestNextReviewTimeInvertsDecay(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	st := mustReview(t, s, "T1", 0.3, t0) // difficulty 1.1

	got, err := s.NextReviewTime("T1", 0.9, 0.4, t0)
	if err != nil {
		t.Fatalf("NextReviewTime: %v", err)
	}
	days := got.Sub(t0).Hours() / 24
	assertFloat(t, "days", days, math.Log(0.9/0.4)/(0.1*1.1))
	assertFloat(t, "strength at next", strength(0.9, st.DecayRate*st.DifficultyFactor, days), 0.4)
}

func TestScheduledReviewIsConservative(t *testing.T) {
	// The schedule inverts the unadjusted rate, so the consolidated strength
	// is still at or above the threshold when the topic comes due.
	s := mustScheduler(t, SchedulerConfig{})
	st := mustReview(t, s, "T1", 0.7, t0)
	st = mustReview(t, s, "T1", 0.7, *st.NextReviewTime)

	got, err := s.CurrentStrength("T1", *st.NextReviewTime)
	if err != nil {
		t.Fatalf("CurrentStrength: %v", err)
	}
	if got < s.Params().MinStrength {
		t.Errorf("strength at next review = %v, want >= %v", got, s.Params().MinStrength)
	}
	if got-s.Params().MinStrength < epsilon {
		t.Errorf("strength at next review = %v, want strictly above threshold after reviews", got)
	}
}

func TestNextReviewTimeFloor(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{Params: Params{DecayRate: 5}})
	mustReview(t, s, "T1", 0.6, t0)
	got, err := s.NextReviewTime("T1", 0.25, 0.2, t0)
	if err != nil {
		t.Fatalf("NextReviewTime: %v", err)
	}
	if want := t0.Add(6 * time.Hour); !got.Equal(want) {
		t.Errorf("NextReviewTime = %v, want floor %v", got, want)
	}
}

func TestNextReviewTimeUnknownTopic(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	_, err := s.NextReviewTime("T1", 0.9, 0.2, t0)
	if !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("NextReviewTime on unreviewed topic = %v, want ErrUnknownTopic", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ErrUnknownTopic should wrap ErrInvalidInput: %v", err)
	}
}

func TestNextReviewTimeInvalid(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	for _, tc := range []struct{ current, target float64 }{
		{0.5, -0.1},
		{0.5, 1.5},
		{1.5, 0.2},
		{math.NaN(), 0.2},
	} {
		if _, err := s.NextReviewTime("T1", tc.current, tc.target, t0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("NextReviewTime(%v, %v) = %v, want ErrInvalidInput", tc.current, tc.target, err)
		}
	}
}

// --- Topics ---

func TestTopicsSortedCopies(t *testing.T) {
	s := mustScheduler(t, SchedulerConfig{})
	mustReview(t, s, "b", 0.5, t0)
	mustReview(t, s, "a", 0.5, t0)

	topics := s.Topics()
	if len(topics) != 2 || topics[0].TopicID != "a" || topics[1].TopicID != "b" {
		t.Fatalf("Topics() = %+v", topics)
	}
	*topics[0].NextReviewTime = time.Time{}
	st, _ := s.Topic("a")
	if st.NextReviewTime.IsZero() {
		t.Error("Topics() should return independent copies")
	}
}
