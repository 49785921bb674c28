package proptest

import (
	"os"
	"strconv"
	"testing"
)

// defaultIterations is how many random cases QuickCheck tries per property
// when PROPTEST_ITERATIONS is not set.
const defaultIterations = 100

// QuickCheck runs prop against defaultIterations random cases (or the count
// from the PROPTEST_ITERATIONS environment variable). Each case uses a fresh
// Generator seeded from PROPTEST_SEED if set, otherwise from the current
// time, so a failing seed can be pinned down and replayed by setting
// PROPTEST_SEED.
//
// prop returns false (or fails t) to report a counterexample; QuickCheck
// logs the seed that produced it so the run is reproducible.
func QuickCheck(t *testing.T, name string, prop func(g *Generator) bool) {
	t.Helper()

	iterations := defaultIterations
	if v := os.Getenv("PROPTEST_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			iterations = n
		}
	}

	var fixedSeed int64
	hasFixedSeed := false
	if v := os.Getenv("PROPTEST_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			fixedSeed = n
			hasFixedSeed = true
		}
	}

	for i := 0; i < iterations; i++ {
		seed := fixedSeed
		if !hasFixedSeed {
			seed = 0 // New(0) seeds from the clock
		}
		g := New(seed)

		ok := runProp(t, prop, g)
		if !ok {
			t.Fatalf("property %q failed on iteration %d (seed=%d); rerun with PROPTEST_SEED=%d to reproduce",
				name, i, g.Seed(), g.Seed())
			return
		}
		if hasFixedSeed {
			// A fixed seed only ever produces one case; running it
			// `iterations` times would be redundant.
			return
		}
	}
}

// runProp isolates a single property evaluation so a panic (e.g. from a
// combinator precondition) is reported as a normal test failure with the
// reproducing seed, rather than crashing the whole test binary.
func runProp(t *testing.T, prop func(g *Generator) bool, g *Generator) (ok bool) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Logf("property panicked (seed=%d): %v", g.Seed(), r)
			ok = false
		}
	}()
	return prop(g)
}
