package entity

// RegionVersion describes the dataset version of one game region.
type RegionVersion struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// Fingerprint is the remote dataset version structure: one [RegionVersion]
// per region code (JP, NA, CN, KR, TW). It is persisted verbatim so the next
// start compares against the latest remote state.
type Fingerprint map[string]RegionVersion

// Hash returns the dataset hash for region, or "" if the region is absent.
func (f Fingerprint) Hash(region string) string {
	return f[region].Hash
}

// SameRegion reports whether f and other carry the same, non-empty hash for
// region. A region missing from either side never matches.
func (f Fingerprint) SameRegion(other Fingerprint, region string) bool {
	a, ok := f[region]
	if !ok || a.Hash == "" {
		return false
	}
	b, ok := other[region]
	if !ok {
		return false
	}
	return a.Hash == b.Hash
}
