// Package admission implements the size-bounded admission scheduler:
// a stateless function deciding which not-yet-downloaded files to
// request next so that in-flight download size never exceeds the
// scratch budget, except when a single file is larger than the
// budget (starvation-break rule).
package admission

// File is one torrent file in file-range order.
type File struct {
	Path string
	Size int64
}

// Sets groups the three disjoint admission sets from spec.md §3.
type Sets struct {
	Requested map[string]struct{}
	InFlight  map[string]struct{}
	Completed map[string]struct{}
}

// NextChunk walks files in order, admitting requested-but-not-yet-
// in-flight-or-completed files while the running total stays within
// budget. A budget <= 0 means unlimited, mirroring the original's use
// of LLONG_MAX: the whole eligible set is admitted at once. If nothing
// fits and no in-flight work exists, the first eligible file is
// admitted unconditionally to avoid deadlock.
func NextChunk(files []File, sets Sets, budget int64) []string {
	unlimited := budget <= 0

	var total int64
	for _, f := range files {
		if _, inFlight := sets.InFlight[f.Path]; inFlight {
			total += f.Size
		}
	}

	var chunk []string
	firstEligible := ""
	haveEligible := false

	for _, f := range files {
		if _, ok := sets.Requested[f.Path]; !ok {
			continue
		}
		if _, done := sets.Completed[f.Path]; done {
			continue
		}
		if _, inFlight := sets.InFlight[f.Path]; inFlight {
			continue
		}
		if !haveEligible {
			firstEligible = f.Path
			haveEligible = true
		}
		if unlimited || total+f.Size <= budget {
			chunk = append(chunk, f.Path)
			total += f.Size
			continue
		}
	}

	if len(chunk) == 0 && haveEligible && total == 0 {
		chunk = append(chunk, firstEligible)
	}
	return chunk
}
