package domain

// QuerySection is the sampled representation of one leg: its endpoints, its
// length in meters, and the ordered sample points at which circular queries
// are issued. The first sample point is the leg's first point and the last
// is the leg's final point.
type QuerySection struct {
	Start         GeoPoint   `json:"start"`
	End           GeoPoint   `json:"end"`
	Distance      float64    `json:"distance"`
	QueryPolyline []GeoPoint `json:"queryPolyline"`
}

// IndexMatch is one entry returned by a geo index radius query.
type IndexMatch struct {
	Key      string   `json:"key"`
	Location GeoPoint `json:"location"`
}

// LegResult pairs a leg's query section with the entries confirmed to lie
// inside the corridor, deduplicated by key across all sample points.
type LegResult struct {
	Section QuerySection          `json:"querySection"`
	Matches map[string]IndexMatch `json:"queryResult"`
}

// AnalysisResult holds one LegResult per input leg, in input order.
type AnalysisResult []LegResult

// MatchCount returns the total number of matched entries across all legs.
// Entries matched by more than one leg are counted once per leg.
func (r AnalysisResult) MatchCount() int {
	n := 0
	for _, lr := range r {
		n += len(lr.Matches)
	}
	return n
}

// SamplePointCount returns the total number of sample points across all legs.
func (r AnalysisResult) SamplePointCount() int {
	n := 0
	for _, lr := range r {
		n += len(lr.Section.QueryPolyline)
	}
	return n
}
