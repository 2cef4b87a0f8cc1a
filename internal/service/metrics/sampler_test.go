package metrics

import (
	"math/rand/v2"
	"testing"
)

func TestSampleStaysInRange(t *testing.T) {
	sampler := NewSampler(rand.NewPCG(3, 5), func() int { return 2 })

	for i := 0; i < 200; i++ {
		snap := sampler.Sample()
		if snap.CPU < 10 || snap.CPU > 29 {
			t.Fatalf("cpu out of range: %d", snap.CPU)
		}
		if snap.RAM < 40 || snap.RAM > 49 {
			t.Fatalf("ram out of range: %d", snap.RAM)
		}
		if snap.Network < 0 || snap.Network > 99 {
			t.Fatalf("net out of range: %d", snap.Network)
		}
		if snap.Sessions != 2 {
			t.Fatalf("unexpected session count: %d", snap.Sessions)
		}
	}
}
