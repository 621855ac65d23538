// Package personalize aggregates the interaction log into per-user habits
// and writes them back to the profile document.
package personalize

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/profile"
	"cockpit/fusion/internal/types"
)

// UnresponsiveThreshold is the unanswered-warning count that escalates a
// user's distraction alerts to urgent.
const UnresponsiveThreshold = 3

// Analyze computes habits per user id. Records with an empty user id are
// skipped.
func Analyze(recs []interaction.Record) map[string]profile.Habits {
	out := make(map[string]profile.Habits)
	modCounts := make(map[string]map[string]int)
	for _, r := range recs {
		if r.UserID == "" {
			continue
		}
		h := out[r.UserID]
		if h.CommonCommands == nil {
			h.CommonCommands = make(map[string]int)
		}
		if isCommand(r) {
			h.CommonCommands[r.RecognizedIntent]++
		}
		switch {
		case r.EventType == string(types.EventWarningConfirmed) || r.RecognizedIntent == "CONFIRM_ACTION":
			h.WarningResponses.Confirmed++
		case r.EventType == string(types.EventWarningRejected) || r.RecognizedIntent == "REJECT_ACTION":
			h.WarningResponses.Rejected++
		case r.EventType == string(types.EventWarningUnresponsive):
			h.WarningResponses.Unresponsive++
		}
		mc := modCounts[r.UserID]
		if mc == nil {
			mc = make(map[string]int)
			modCounts[r.UserID] = mc
		}
		for _, m := range r.Modalities() {
			if m != "" {
				mc[m]++
			}
		}
		out[r.UserID] = h
	}
	for id, h := range out {
		h.PreferredModality = top(modCounts[id])
		out[id] = h
	}
	return out
}

func isCommand(r interaction.Record) bool {
	if r.RecognizedIntent == "" {
		return false
	}
	switch types.EventType(r.EventType) {
	case types.EventCommandSuccess, types.EventCommandFailure, types.EventPermissionDenied:
		return true
	}
	return false
}

// top returns the most frequent key; ties resolve alphabetically.
func top(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, n := "", 0
	for _, k := range keys {
		if counts[k] > n {
			best, n = k, counts[k]
		}
	}
	return best
}

// Apply writes habits into doc and applies the adaptive rules. Users missing
// from doc are ignored. It reports the ids that changed.
func Apply(doc *profile.Document, habits map[string]profile.Habits, at time.Time) []string {
	var changed []string
	for _, id := range doc.UserIDs() {
		h, ok := habits[id]
		if !ok {
			continue
		}
		u := doc.Users[id]
		h.AnalyzedAt = at.UTC()
		u.Habits = h
		if h.WarningResponses.Unresponsive >= UnresponsiveThreshold {
			escalate(&u)
		}
		doc.Users[id] = u
		changed = append(changed, id)
	}
	return changed
}

// escalate sets urgent distraction alerts unless the user picked a
// non-default level.
func escalate(u *profile.User) {
	if u.Preferences.Events == nil {
		u.Preferences.Events = make(map[types.EventType]profile.EventPreference)
	}
	p := u.Preferences.Events[types.EventUserDistracted]
	if p.Verbosity != "" && p.Verbosity != profile.VerbosityNormal {
		return
	}
	p.Verbosity = profile.VerbosityUrgent
	u.Preferences.Events[types.EventUserDistracted] = p
}

// Pass runs one analysis over src and saves the result through store.
func Pass(ctx context.Context, src interaction.Reader, store *profile.Store, log *zap.Logger) error {
	recs, err := src.Records(ctx)
	if err != nil {
		return fmt.Errorf("read interactions: %w", err)
	}
	habits := Analyze(recs)
	var changed []string
	err = store.Update(func(doc *profile.Document) error {
		changed = Apply(doc, habits, time.Now())
		return nil
	})
	if err != nil {
		metricPasses.WithLabelValues("error").Inc()
		return fmt.Errorf("save profiles: %w", err)
	}
	metricPasses.WithLabelValues("ok").Inc()
	log.Info("personalization pass", zap.Int("records", len(recs)), zap.Strings("users", changed))
	return nil
}

// Run repeats Pass every interval until ctx is done. A zero interval
// returns immediately.
func Run(ctx context.Context, interval time.Duration, src interaction.Reader, store *profile.Store, log *zap.Logger) error {
	if interval <= 0 {
		return nil
	}
	log = log.Named("personalize")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := Pass(ctx, src, store, log); err != nil {
				log.Warn("personalization pass failed", zap.Error(err))
			}
		}
	}
}
