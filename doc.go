// Package ebb implements an adaptive memory-decay model and review scheduler.
//
// Each topic carries a memory strength in [0, 1] that decays exponentially
// from the moment it was last reviewed. Reviews restore part of the lost
// strength and adapt the topic's difficulty factor, and the Scheduler inverts
// the decay curve to find when strength will cross the review threshold.
//
// Basic usage:
//
//	s, err := ebb.NewScheduler(ebb.SchedulerConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	st, err := s.RecordReview("go-generics", 0.9, time.Now())
//	due := s.DueTopics(time.Now(), 10)
//
// Calibration of the global parameters from a review ledger lives in the
// ebb/optimizer subpackage, and ebb/sqlitestore archives saved state.
package ebb
