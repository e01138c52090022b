package frame

import "testing"

// Benchmark: allocate/release pairs at the base of an empty pool.
func Benchmark_Pool_AllocateRelease(b *testing.B) {
	p := testPool(b, 1024)

	b.ResetTimer()
	b.ReportAllocs()

	for n := 0; n < b.N; n++ {
		h, err := p.Allocate(4)
		if err != nil {
			b.Fatal(err)
		}
		if err := p.Release(h); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark: first-fit scan across a pool whose only free run sits at
// the tail.
func Benchmark_Pool_FirstFitScan(b *testing.B) {
	p := testPool(b, 4096)

	var last uint32
	for {
		h, err := p.Allocate(2)
		if err != nil {
			break
		}
		last = h
	}
	if err := p.Release(last); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for n := 0; n < b.N; n++ {
		h, err := p.Allocate(2)
		if err != nil {
			b.Fatal(err)
		}
		if err := p.Release(h); err != nil {
			b.Fatal(err)
		}
	}
}
