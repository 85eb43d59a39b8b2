package common

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaValueCapExceeded = errors.New("quota value cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount  uint32
	ValueUsed uint64
	EpochID   uint64
}

// Quota defines the limits enforced for a module interaction per address.
type Quota struct {
	MaxRequestsPerMin uint32
	MaxValuePerEpoch  uint64
	EpochSeconds      uint32
}

// CheckQuota verifies whether the additional request and value usage fit within
// the configured quota. The returned QuotaNow reflects the updated counters when
// the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addValue uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerMin > 0 && next.ReqCount > q.MaxRequestsPerMin {
		return prev, ErrQuotaRequestsExceeded
	}

	if addValue > 0 {
		if next.ValueUsed > math.MaxUint64-addValue {
			return prev, ErrQuotaCounterOverflow
		}
		next.ValueUsed += addValue
	}
	if q.MaxValuePerEpoch > 0 && next.ValueUsed > q.MaxValuePerEpoch {
		return prev, ErrQuotaValueCapExceeded
	}

	return next, nil
}

// QuotaTracker keeps per-address counters in memory for a single module.
type QuotaTracker struct {
	mu       sync.Mutex
	quota    Quota
	epoch    uint64
	counters map[[20]byte]QuotaNow
}

// NewQuotaTracker returns a tracker enforcing q. A zero quota admits everything.
func NewQuotaTracker(q Quota) *QuotaTracker {
	return &QuotaTracker{quota: q, counters: make(map[[20]byte]QuotaNow)}
}

// Consume charges one request and value against addr at time now.
func (t *QuotaTracker) Consume(addr [20]byte, now time.Time, value uint64) error {
	if t == nil {
		return nil
	}
	epochSeconds := uint64(t.quota.EpochSeconds)
	if epochSeconds == 0 {
		epochSeconds = 60
	}
	epoch := uint64(now.Unix()) / epochSeconds

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch > t.epoch {
		// Counters from earlier epochs would be reset on next use anyway.
		for key, counter := range t.counters {
			if counter.EpochID < epoch {
				delete(t.counters, key)
			}
		}
		t.epoch = epoch
	}
	next, err := CheckQuota(t.quota, epoch, t.counters[addr], 1, value)
	if err != nil {
		return err
	}
	t.counters[addr] = next
	return nil
}
