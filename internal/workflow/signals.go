package workflow

import (
	"path"
	"strings"
)

// PackageManagerSignal is evidence that a package-management ecosystem is in
// use: a manifest basename matched against the fixed manifest table.
type PackageManagerSignal struct {
	Ecosystem      string   `json:"ecosystem"`
	Languages      []string `json:"languages"`
	Files          []string `json:"files"`
	DependencyRisk bool     `json:"dependency_risk"`
}

// DetectSignals matches each path's basename against the manifest table and
// returns one signal per ecosystem, deduplicated by first occurrence. The
// path list is supplied by the caller; no filesystem access happens here. An
// empty result is a valid outcome, not an error.
func DetectSignals(paths []string) []PackageManagerSignal {
	var signals []PackageManagerSignal
	index := map[string]int{}

	record := func(p string, info ecosystemInfo) {
		if i, ok := index[info.Ecosystem]; ok {
			signals[i].Files = append(signals[i].Files, p)
			return
		}
		index[info.Ecosystem] = len(signals)
		signals = append(signals, PackageManagerSignal{
			Ecosystem:      info.Ecosystem,
			Languages:      append([]string(nil), info.Languages...),
			Files:          []string{p},
			DependencyRisk: info.DependencyRisk,
		})
	}

	for _, p := range paths {
		base := path.Base(p)
		if info, ok := manifestEcosystems[base]; ok {
			record(p, info)
			continue
		}
		for suffix, info := range manifestSuffixes {
			if strings.HasSuffix(base, suffix) {
				record(p, info)
				break
			}
		}
	}

	return signals
}
