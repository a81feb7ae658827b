package engine

// subset is one candidate combination of appliances sharing an hour.
// loadKW and remDelta are fixed per combination, so they are computed once
// when the solver is built rather than at every state.
type subset struct {
	members  []int   // appliance indices, ascending
	loadKW   float64 // combined draw of all members
	remDelta uint64  // packed-key decrement when every member runs one hour
}

// enumerateSubsets lists every subset of {0..n-1} in canonical order:
// ascending size, lexicographic by index within a size, starting with the
// empty subset. The schedule reconstruction commits the first subset in
// this order that reproduces the optimal cost, so the order is part of the
// solver's contract: reordering changes which of several equally cheap
// schedules is reported.
func enumerateSubsets(n int) [][]int {
	subs := make([][]int, 0, 1<<uint(n))
	subs = append(subs, []int{})
	for k := 1; k <= n; k++ {
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			subs = append(subs, append([]int(nil), idx...))

			// Advance to the next k-combination.
			i := k - 1
			for i >= 0 && idx[i] == n-k+i {
				i--
			}
			if i < 0 {
				break
			}
			idx[i]++
			for j := i + 1; j < k; j++ {
				idx[j] = idx[j-1] + 1
			}
		}
	}
	return subs
}
