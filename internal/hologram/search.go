package hologram

// SearchResult is the outcome of Search1D: the winning index and its score.
type SearchResult struct {
	Index int
	Score float64
}

// Search1D performs the memoized iterative golden-section-like refinement
// specified in spec.md §4.3: at each iteration a 3-tap weighted sum
// f(i-s) + 2*f(i) + f(min(end,i+s)) is maximized over i with step s; the
// window is contracted around the best index and the step reduced
// geometrically down to eps (default 1.0), capped at maxIter (default
// 1000). Ties break on the smaller index. f is memoized since the same
// index may be queried across iterations.
func Search1D(begin, end int, f func(int) float64) SearchResult {
	return search1D(begin, end, f, 1.0, 1000)
}

// Search1DWithParams exposes eps/maxIter for tests.
func Search1DWithParams(begin, end int, f func(int) float64, eps float64, maxIter int) SearchResult {
	return search1D(begin, end, f, eps, maxIter)
}

func search1D(begin, end int, f func(int) float64, eps float64, maxIter int) SearchResult {
	if end < begin {
		begin, end = end, begin
	}
	memo := map[int]float64{}
	call := func(i int) float64 {
		if i < begin {
			i = begin
		}
		if i > end {
			i = end
		}
		if v, ok := memo[i]; ok {
			return v
		}
		v := f(i)
		memo[i] = v
		return v
	}

	lo, hi := begin, end
	best := lo
	step := float64(hi-lo) / 2
	if step < eps {
		step = eps
	}

	weighted := func(i, s int) float64 {
		return call(i-s) + 2*call(i) + call(clampInt(i+s, begin, end))
	}

	iters := 0
	for step >= eps && iters < maxIter {
		s := int(step)
		if s < 1 {
			s = 1
		}
		bestScore := weighted(lo, s)
		best = lo
		for i := lo; i <= hi; i++ {
			sc := weighted(i, s)
			if sc > bestScore {
				bestScore = sc
				best = i
			}
			// tie: smaller index already wins since we only replace on strict >
		}
		// contract window around best
		newLo := best - s
		newHi := best + s
		if newLo < begin {
			newLo = begin
		}
		if newHi > end {
			newHi = end
		}
		if newLo == lo && newHi == hi {
			step /= 1.6180339887 // golden ratio contraction when window stops shrinking
		} else {
			lo, hi = newLo, newHi
			step = float64(hi-lo) / 2
			if step < eps {
				step = eps
			}
		}
		iters++
	}

	return SearchResult{Index: best, Score: call(best)}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
