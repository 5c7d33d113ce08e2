package scene

import (
	"encoding/json"
	"errors"
)

// Applied summarizes the side effects triggered by one snapshot application.
type Applied struct {
	ThemeReapplied  bool
	LensflareSet    bool
	PixelRatioSet   bool
	ParticleRebuild bool
}

var errNotObject = errors.New("snapshot payload is not an object")

// MergeParams layers the raw JSON snapshot onto cur and returns the result.
// Merge rules: nested objects merge field-by-field, arrays replace
// wholesale, scalars overwrite. Fields the sender omitted keep their current
// value, so a partial snapshot from an older or newer peer never clobbers
// local state it did not mention.
func MergeParams(cur Params, raw json.RawMessage) (Params, error) {
	var incoming map[string]any
	if err := json.Unmarshal(raw, &incoming); err != nil || incoming == nil {
		return cur, errNotObject
	}

	curBytes, err := json.Marshal(cur)
	if err != nil {
		return cur, err
	}
	var base map[string]any
	if err := json.Unmarshal(curBytes, &base); err != nil {
		return cur, err
	}

	mergeMaps(base, incoming)

	mergedBytes, err := json.Marshal(base)
	if err != nil {
		return cur, err
	}
	merged := cur.Clone()
	if err := json.Unmarshal(mergedBytes, &merged); err != nil {
		return cur, err
	}
	return merged, nil
}

// mergeMaps applies src onto dst in place. Only map-typed values recurse;
// everything else (scalars, arrays, nulls) overwrites.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeMaps(dv, sv)
			continue
		}
		dst[k] = v
	}
}

// ApplySnapshot merges raw onto the engine's live parameters and drives the
// per-field side effects. A particle rebuild is invoked exactly once at the
// end no matter how many fields requested it.
func ApplySnapshot(e Engine, raw json.RawMessage) (Applied, error) {
	var out Applied

	before := e.Params()
	merged, err := MergeParams(before, raw)
	if err != nil {
		return out, err
	}

	// Scalars and nested values land first so side-effect routines below see
	// the post-merge state.
	e.SetParams(merged)

	if merged.Theme != before.Theme || merged.BackgroundHDR != before.BackgroundHDR {
		e.ApplyTheme(merged.Theme, merged.BackgroundHDR)
		out.ThemeReapplied = true
	}
	if merged.Lensflare != before.Lensflare {
		e.SetLensflare(merged.Lensflare)
		out.LensflareSet = true
	}
	if merged.PixelRatioCap != before.PixelRatioCap {
		e.SetPixelRatioCap(merged.PixelRatioCap)
		out.PixelRatioSet = true
	}

	rebuild := merged.ParticleDensity != before.ParticleDensity ||
		merged.OuterShell.Enabled != before.OuterShell.Enabled ||
		merged.OuterShell.DensityScale != before.OuterShell.DensityScale
	if rebuild {
		e.RebuildParticles()
		out.ParticleRebuild = true
	}

	return out, nil
}
