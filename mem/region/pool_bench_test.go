package region

import "testing"

// Benchmark: reserve a page-sized region and give it back untouched.
// Untouched regions never fault, so this times the descriptor path
// alone.
func Benchmark_Window_AllocateRelease(b *testing.B) {
	rig := newTestRig(b)
	w := newWindow(b, rig, 64)

	b.ResetTimer()
	b.ReportAllocs()

	for n := 0; n < b.N; n++ {
		addr, err := w.Allocate(pageSize)
		if err != nil {
			b.Fatal(err)
		}
		if err := w.Release(addr); err != nil {
			b.Fatal(err)
		}
	}
}
