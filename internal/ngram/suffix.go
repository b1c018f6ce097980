package ngram

import "sort"

// buildSuffixArray returns the suffix array of seq using prefix doubling.
// O(n log² n), which comfortably clears the extractor's throughput target,
// and has no alphabet-size assumptions — codepoints go up to 0x10FFFF.
func buildSuffixArray(seq []rune) []int {
	n := len(seq)
	sa := make([]int, n)
	rank := make([]int, n)
	tmp := make([]int, n)

	for i := 0; i < n; i++ {
		sa[i] = i
		rank[i] = int(seq[i])
	}

	for k := 1; ; k *= 2 {
		less := func(a, b int) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			ra, rb := -1, -1
			if a+k < n {
				ra = rank[a+k]
			}
			if b+k < n {
				rb = rank[b+k]
			}
			return ra < rb
		}
		sort.Slice(sa, func(i, j int) bool { return less(sa[i], sa[j]) })

		tmp[sa[0]] = 0
		for i := 1; i < n; i++ {
			tmp[sa[i]] = tmp[sa[i-1]]
			if less(sa[i-1], sa[i]) {
				tmp[sa[i]]++
			}
		}
		copy(rank, tmp)
		if rank[sa[n-1]] == n-1 {
			break
		}
	}
	return sa
}

// buildLCP computes the Kasai LCP array: lcp[i] is the length of the common
// prefix of suffixes sa[i-1] and sa[i]; lcp[0] is 0.
func buildLCP(seq []rune, sa []int) []int {
	n := len(seq)
	lcp := make([]int, n)
	inv := make([]int, n)
	for i, s := range sa {
		inv[s] = i
	}
	h := 0
	for i := 0; i < n; i++ {
		if inv[i] == 0 {
			h = 0
			continue
		}
		j := sa[inv[i]-1]
		for i+h < n && j+h < n && seq[i+h] == seq[j+h] {
			h++
		}
		lcp[inv[i]] = h
		if h > 0 {
			h--
		}
	}
	return lcp
}
