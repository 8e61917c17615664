package networking

import (
	"math"
	"sync"
	"time"
)

// BandwidthUsage is the throttle state of one subscriber.
type BandwidthUsage struct {
	SubscriberID   string    `json:"subscriberId"`
	AvailableBytes float64   `json:"availableBytes"`
	BytesPerSecond float64   `json:"bytesPerSecond"`
	Denied         int64     `json:"denied"`
	Since          time.Time `json:"since"`
}

type bandwidthBucket struct {
	tokens float64
	last   time.Time
	since  time.Time
	sent   int64
	denied int64
}

// BandwidthRegulator caps outbound bytes per subscriber with a token bucket.
// A nil regulator admits everything.
type BandwidthRegulator struct {
	mu       sync.Mutex
	buckets  map[string]*bandwidthBucket
	capacity float64
	now      func() time.Time
}

// NewBandwidthRegulator returns nil when bytesPerSecond is not positive.
func NewBandwidthRegulator(bytesPerSecond float64, clock func() time.Time) *BandwidthRegulator {
	if bytesPerSecond <= 0 || math.IsNaN(bytesPerSecond) {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		buckets:  make(map[string]*bandwidthBucket),
		capacity: bytesPerSecond,
		now:      clock,
	}
}

func (r *BandwidthRegulator) refill(bucket *bandwidthBucket, now time.Time) {
	if now.Before(bucket.last) {
		return
	}
	bucket.tokens = math.Min(r.capacity, bucket.tokens+now.Sub(bucket.last).Seconds()*r.capacity)
	bucket.last = now
}

// Allow charges a frame against the subscriber's budget.
func (r *BandwidthRegulator) Allow(subscriberID string, payloadBytes int) bool {
	if r == nil || subscriberID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket := r.buckets[subscriberID]
	if bucket == nil {
		//1.- New subscribers start with a full second of budget.
		bucket = &bandwidthBucket{tokens: r.capacity, last: now, since: now}
		r.buckets[subscriberID] = bucket
	}
	r.refill(bucket, now)

	if float64(payloadBytes) > bucket.tokens {
		bucket.denied++
		return false
	}
	bucket.tokens -= float64(payloadBytes)
	bucket.sent += int64(payloadBytes)
	return true
}

// Forget drops the subscriber's bucket.
func (r *BandwidthRegulator) Forget(subscriberID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.buckets, subscriberID)
	r.mu.Unlock()
}

// Usage reports every tracked subscriber.
func (r *BandwidthRegulator) Usage() map[string]BandwidthUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buckets) == 0 {
		return nil
	}
	now := r.now()
	usage := make(map[string]BandwidthUsage, len(r.buckets))
	for id, bucket := range r.buckets {
		r.refill(bucket, now)
		rate := 0.0
		if observed := now.Sub(bucket.since).Seconds(); observed > 0 {
			rate = float64(bucket.sent) / observed
		}
		usage[id] = BandwidthUsage{
			SubscriberID:   id,
			AvailableBytes: math.Max(bucket.tokens, 0),
			BytesPerSecond: rate,
			Denied:         bucket.denied,
			Since:          bucket.since,
		}
	}
	return usage
}
