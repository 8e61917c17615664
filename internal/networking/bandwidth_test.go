package networking

import (
	"math"
	"testing"
	"time"
)

func TestBandwidthRegulatorEnforcesRate(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	regulator := NewBandwidthRegulator(100, clock)

	if !regulator.Allow("client-1", 60) {
		t.Fatalf("expected initial burst to be allowed")
	}
	if regulator.Allow("client-1", 50) {
		t.Fatalf("expected snapshot to be throttled while tokens depleted")
	}

	//1.- Half a second refills fifty bytes on top of the forty left over.
	current = current.Add(500 * time.Millisecond)
	if !regulator.Allow("client-1", 50) {
		t.Fatalf("expected snapshot to pass after partial refill")
	}

	current = current.Add(time.Second)
	sample, ok := regulator.Usage()["client-1"]
	if !ok {
		t.Fatalf("missing usage sample for client")
	}
	if sample.Denied != 1 {
		t.Fatalf("expected one denied snapshot, got %d", sample.Denied)
	}
	if sample.AvailableBytes != 100 {
		t.Fatalf("expected the bucket to refill to capacity, got %f", sample.AvailableBytes)
	}
	expectedRate := 110 / 1.5
	if math.Abs(sample.BytesPerSecond-expectedRate) > 1e-6 {
		t.Fatalf("unexpected throughput: got %.6f want %.6f", sample.BytesPerSecond, expectedRate)
	}

	regulator.Forget("client-1")
	if usage := regulator.Usage(); len(usage) != 0 {
		t.Fatalf("expected usage map cleared after forget, got %d entries", len(usage))
	}
}

func TestBandwidthRegulatorDisabled(t *testing.T) {
	regulator := NewBandwidthRegulator(0, nil)
	if regulator != nil {
		t.Fatalf("expected a zero budget to disable throttling")
	}
	if !regulator.Allow("client-1", 1<<20) {
		t.Fatalf("expected a nil regulator to admit everything")
	}
	if regulator.Usage() != nil {
		t.Fatalf("expected no usage from a nil regulator")
	}
}

func TestSnapshotMetricsTracksSubscribers(t *testing.T) {
	metrics := NewSnapshotMetrics()
	metrics.Observe("a", 120, true)
	metrics.Observe("a", 140, true)
	metrics.Observe("b", 90, false)
	metrics.Observe("b", 90, false)

	sent, dropped := metrics.Totals()
	if sent != 2 || dropped != 2 {
		t.Fatalf("unexpected totals sent=%d dropped=%d", sent, dropped)
	}
	//1.- Byte gauges keep the latest payload size, not a sum.
	if bytes := metrics.BytesPerSubscriber(); bytes["a"] != 140 {
		t.Fatalf("expected latest size 140, got %v", bytes)
	}
	if drops := metrics.DropsPerSubscriber(); drops["b"] != 2 {
		t.Fatalf("expected two drops for b, got %v", drops)
	}

	metrics.Forget("b")
	if drops := metrics.DropsPerSubscriber(); drops != nil {
		t.Fatalf("expected drops cleared after forget, got %v", drops)
	}
	if sent, dropped := metrics.Totals(); sent != 2 || dropped != 2 {
		t.Fatalf("expected totals to survive forget, got %d/%d", sent, dropped)
	}
}
