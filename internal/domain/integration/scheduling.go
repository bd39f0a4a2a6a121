package integration

import (
	"sort"
	"time"
)

// IsDue reports whether the integration should run a scheduled pass at now
func IsDue(i *Integration, now time.Time) bool {
	if i.IsDeleted() || !i.AutoSyncEnabled || i.Status != StatusActive {
		return false
	}
	if i.LastSync == nil {
		return true
	}
	interval := time.Duration(i.SyncIntervalMinutes) * time.Minute
	return now.Sub(*i.LastSync) >= interval
}

// DueIntegrations filters candidates down to those due at now, longest-starved first:
// never-synced integrations lead, then ascending last_sync.
func DueIntegrations(candidates []Integration, now time.Time) []Integration {
	due := make([]Integration, 0, len(candidates))
	for idx := range candidates {
		if IsDue(&candidates[idx], now) {
			due = append(due, candidates[idx])
		}
	}
	sort.SliceStable(due, func(a, b int) bool {
		return starvedBefore(due[a].LastSync, due[b].LastSync, &due[a], &due[b])
	})
	return due
}

func starvedBefore(ta, tb *time.Time, a, b *Integration) bool {
	switch {
	case ta == nil && tb == nil:
		return a.CreatedAt.Before(b.CreatedAt)
	case ta == nil:
		return true
	case tb == nil:
		return false
	case ta.Equal(*tb):
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return ta.Before(*tb)
	}
}

// ---------------------------------------------------------------------------
// Retry policy for transient failures
// ---------------------------------------------------------------------------

const (
	defaultRetryBaseDelay = 5 * time.Minute
	defaultRetryMaxDelay  = 30 * time.Minute
)

// RetryPolicy is exponential backoff: base * 2^(failures-1), capped at MaxDelay
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns a 5 minute base capped at 30 minutes
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: defaultRetryBaseDelay, MaxDelay: defaultRetryMaxDelay}
}

// Delay returns the wait before the next attempt after n consecutive failures
func (p RetryPolicy) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	delay := base
	for n := 1; n < failures; n++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// IsRetryable reports whether an errored integration may be retried at now
func (p RetryPolicy) IsRetryable(i *Integration, now time.Time) bool {
	if i.IsDeleted() || !i.AutoSyncEnabled || i.Status != StatusError || !i.LastErrorTransient {
		return false
	}
	if i.LastAttemptAt == nil {
		return true
	}
	return !now.Before(i.LastAttemptAt.Add(p.Delay(i.ConsecutiveFailures)))
}

// RetryCandidates returns errored integrations whose backoff has elapsed,
// oldest attempt first.
func (p RetryPolicy) RetryCandidates(candidates []Integration, now time.Time) []Integration {
	out := make([]Integration, 0)
	for idx := range candidates {
		if p.IsRetryable(&candidates[idx], now) {
			out = append(out, candidates[idx])
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return starvedBefore(out[a].LastAttemptAt, out[b].LastAttemptAt, &out[a], &out[b])
	})
	return out
}
