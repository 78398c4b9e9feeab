// SPDX-License-Identifier: Apache-2.0

package query

// deepMerge combines base and overlay per spec.md §3's merge-query
// semantics: "source₁ ⊕ source₂ ⊕ … where ⊕ is right-biased deep merge over
// objects (scalars and arrays are replaced, not concatenated)". Only
// object-vs-object pairs recurse; anything else is replaced wholesale by
// overlay. Neither argument is mutated — recursion always builds fresh
// maps, so a shared JSON source used as a merge input elsewhere is safe.
func deepMerge(base, overlay any) any {
	baseMap, baseOK := base.(map[string]any)
	overlayMap, overlayOK := overlay.(map[string]any)
	if !baseOK || !overlayOK {
		return overlay
	}
	out := make(map[string]any, len(baseMap)+len(overlayMap))
	for k, v := range baseMap {
		out[k] = v
	}
	for k, v := range overlayMap {
		if existing, ok := out[k]; ok {
			out[k] = deepMerge(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}
