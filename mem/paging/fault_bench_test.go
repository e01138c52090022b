package paging

import (
	"testing"

	"github.com/joshuapare/memkit/internal/layout"
)

// Benchmark: table walk for an already-mapped address.
func Benchmark_Translate_Mapped(b *testing.B) {
	rig := newTestRig(b)
	ks := boot(b, rig)

	if _, err := ks.Register(&userClaimant{base: testUserBase, size: layout.TableSpan, pool: rig.process}); err != nil {
		b.Fatal(err)
	}
	addr := uint32(testUserBase + 2*layout.PageSize)
	if err := ks.SetU32(addr, 1); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for n := 0; n < b.N; n++ {
		if _, err := ks.Translate(addr); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark: demand-map one page, then hand its frame back.
func Benchmark_Fault_PageRoundTrip(b *testing.B) {
	rig := newTestRig(b)
	ks := boot(b, rig)

	if _, err := ks.Register(&userClaimant{base: testUserBase, size: layout.TableSpan, pool: rig.process}); err != nil {
		b.Fatal(err)
	}
	addr := uint32(testUserBase)
	// Prime the slot's table so only the page fault is on the clock.
	if err := ks.SetU32(addr, 1); err != nil {
		b.Fatal(err)
	}
	if err := ks.FreePage(addr); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for n := 0; n < b.N; n++ {
		if err := ks.SetU32(addr, 1); err != nil {
			b.Fatal(err)
		}
		if err := ks.FreePage(addr); err != nil {
			b.Fatal(err)
		}
	}
}
