package features

// Neighbour is one candidate of a nearest neighbour descriptor search
type Neighbour struct {
	Index    int     // Descriptor index in the other frame
	Distance float64 // L2 distance between the descriptors
}

// Neighbours are the k=2 nearest candidates of one descriptor, nearest first.
// There is only one candidate when the other frame has a single descriptor.
type Neighbours []Neighbour

// DescriptorMatch pairs descriptor IndexA of frame A with IndexB of frame B
type DescriptorMatch struct {
	IndexA   int
	IndexB   int
	Distance float64 // L2 distance between the descriptors
	Score    float64 // 1 - best/second best distance
}

// passes Lowe's ratio test. With only one candidate there is no second neighbour
// to compare against, so the match is accepted.
func (n Neighbours) passes(ratio float64) bool {
	switch len(n) {
	case 0:
		return false
	case 1:
		return true
	}
	return n[0].Distance < ratio*n[1].Distance
}

// FilterMatches takes the k=2 search results in both directions (ab[i] are the
// neighbours in B of descriptor i of A, and ba the reverse), applies Lowe's ratio test
// in both directions, and keeps only mutual nearest neighbours.
// If maxDistance is positive, matches further apart than maxDistance are dropped.
// Matches are returned in order of IndexA.
func FilterMatches(ab, ba []Neighbours, ratio, maxDistance float64) []DescriptorMatch {
	matches := []DescriptorMatch{}
	for i, n := range ab {
		if !n.passes(ratio) {
			continue
		}
		j := n[0].Index
		if j < 0 || j >= len(ba) || !ba[j].passes(ratio) || ba[j][0].Index != i {
			continue
		}
		dist := n[0].Distance
		if maxDistance > 0 && dist > maxDistance {
			continue
		}
		score := 1.0
		if len(n) > 1 && n[1].Distance > 0 {
			score = 1 - dist/n[1].Distance
		}
		matches = append(matches, DescriptorMatch{
			IndexA:   i,
			IndexB:   j,
			Distance: dist,
			Score:    score,
		})
	}
	return matches
}

// MatchKeypoints runs FilterMatches on the search results of two keypoint sets and
// returns the matched positions in canonical order.
func MatchKeypoints(a, b []Keypoint, ab, ba []Neighbours, ratio, maxDistance float64) []Match {
	dm := FilterMatches(ab, ba, ratio, maxDistance)
	m := make([]Match, len(dm))
	for i, d := range dm {
		m[i] = Match{
			A:     a[d.IndexA].Pt,
			B:     b[d.IndexB].Pt,
			Score: d.Score,
		}
	}
	SortMatches(m)
	return m
}
