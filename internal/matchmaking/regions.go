package matchmaking

// Region is a queue partition. Players queue per (mode, region).
type Region string

const (
	RegionNAEast Region = "na_east"
	RegionNAWest Region = "na_west"
	RegionEUWest Region = "eu_west"
	RegionEUEast Region = "eu_east"
	RegionAPAC   Region = "apac"
	RegionSA     Region = "sa"
)

// crossRegionPolicy lists the cross-region pairs the region manager
// allows. Same-region pairs are always allowed; anything not listed is
// vetoed regardless of measured latency. The latency gate is applied on
// top of this table, never instead of it.
var crossRegionPolicy = map[Region][]Region{
	RegionNAEast: {RegionNAWest, RegionEUWest, RegionSA},
	RegionNAWest: {RegionNAEast, RegionAPAC},
	RegionEUWest: {RegionNAEast, RegionEUEast},
	RegionEUEast: {RegionEUWest},
	RegionAPAC:   {RegionNAWest},
	RegionSA:     {RegionNAEast},
}

// KnownRegion reports whether the region is one the policy table knows.
func KnownRegion(r Region) bool {
	_, ok := crossRegionPolicy[r]
	return ok
}

// RegionsCompatible reports whether the policy allows pairing players
// from regions a and b.
func RegionsCompatible(a, b Region) bool {
	if a == b {
		return KnownRegion(a)
	}
	for _, allowed := range crossRegionPolicy[a] {
		if allowed == b {
			return true
		}
	}
	return false
}
