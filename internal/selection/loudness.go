package selection

import (
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// systemPreference orders measurement systems when the requested one is
// not available: ITU-R BS.1770-4, EBU R 128, BS.1770-4 with
// pre-processing, BS.1771-1, expert panel, user, unknown.
var systemPreference = [...]uint8{2, 1, 3, 6, 5, 4, 0}

// systemRank ranks a measurement system; lower is better.
func systemRank(system, requested uint8) int {
	if system == requested {
		return 0
	}
	for i, s := range systemPreference {
		if s == system {
			return 1 + i
		}
	}
	return 1 + len(systemPreference)
}

// lookupKeys returns the (drcSetId, downmixId) pairs tried for a DRC set
// and downmix, in order. Virtual sets are looked up as "no DRC".
func lookupKeys(setID int, dmx uint8) [][2]int {
	ids := []int{setID, syntax.DrcSetIDAny, syntax.DrcSetIDNone}
	if setID <= 0 {
		ids = []int{syntax.DrcSetIDNone, syntax.DrcSetIDAny}
	}
	dmxs := []int{int(dmx), int(syntax.DownmixIDAny), int(syntax.DownmixIDBase)}
	if dmx == syntax.DownmixIDBase {
		dmxs = []int{int(syntax.DownmixIDBase), int(syntax.DownmixIDAny)}
	}
	keys := make([][2]int, 0, len(ids)*len(dmxs))
	for _, id := range ids {
		for _, d := range dmxs {
			keys = append(keys, [2]int{id, d})
		}
	}
	return keys
}

func scopeMatches(li *syntax.LoudnessInfo, scope syntax.Scope) bool {
	s := li.Scope
	if s == nil {
		s = syntax.PlainScope{}
	}
	if scope == nil {
		scope = syntax.PlainScope{}
	}
	return s == scope
}

// loudnessTable picks the loudness list for the album mode setting.
func loudnessTable(ls *syntax.LoudnessInfoSet, album bool) []syntax.LoudnessInfo {
	if ls == nil {
		return nil
	}
	if album && len(ls.Album) > 0 {
		return ls.Album
	}
	return ls.Info
}

// lookupLoudness finds the loudness of the program with DRC set setID on
// downmix dmx. The requested method (program or anchor) is tried first on
// every key, then the other one. Among matching measurements the best
// ranked measurement system wins; higher reliability breaks ties.
func lookupLoudness(list []syntax.LoudnessInfo, setID int, dmx uint8, scope syntax.Scope, method int, system uint8) (float32, bool) {
	methods := [2]uint8{syntax.MethodProgramLoudness, syntax.MethodAnchorLoudness}
	if method == MethodAnchor {
		methods = [2]uint8{syntax.MethodAnchorLoudness, syntax.MethodProgramLoudness}
	}
	keys := lookupKeys(setID, dmx)
	for _, m := range methods {
		for _, k := range keys {
			var (
				best      *syntax.Measurement
				bestRank  int
				bestRelia uint8
			)
			for i := range list {
				li := &list[i]
				if li.DrcSetID != k[0] || int(li.DownmixID) != k[1] || !scopeMatches(li, scope) {
					continue
				}
				for j := range li.Measurements {
					ms := &li.Measurements[j]
					if ms.MethodDefinition != m {
						continue
					}
					rank := systemRank(ms.System, system)
					if best == nil || rank < bestRank || (rank == bestRank && ms.Reliability > bestRelia) {
						best, bestRank, bestRelia = ms, rank, ms.Reliability
					}
				}
			}
			if best != nil {
				return best.Value, true
			}
		}
	}
	return 0, false
}

// lookupPeak finds the signal peak of the program with DRC set setID on
// downmix dmx, preferring true peak over sample peak.
func lookupPeak(list []syntax.LoudnessInfo, setID int, dmx uint8, scope syntax.Scope) (float32, bool) {
	for _, k := range lookupKeys(setID, dmx) {
		for i := range list {
			li := &list[i]
			if li.DrcSetID != k[0] || int(li.DownmixID) != k[1] || !scopeMatches(li, scope) {
				continue
			}
			if li.TruePeakLevelPresent {
				return li.TruePeakLevel, true
			}
			if li.SamplePeakLevelPresent {
				return li.SamplePeakLevel, true
			}
		}
	}
	return 0, false
}
