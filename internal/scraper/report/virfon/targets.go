package virfon

import (
	"sort"
	"strings"
)

// spellingVariants folds known misspellings of campaign names as they appear
// in the portal and in configuration.
var spellingVariants = strings.NewReplacer("generalli", "generali")

// altMarker distinguishes the alternate variant of a campaign.
const altMarker = "alt"

// NormalizeLabel lowercases s, collapses whitespace and folds spelling
// variants.
func NormalizeLabel(s string) string {
	return spellingVariants.Replace(strings.Join(strings.Fields(strings.ToLower(s)), " "))
}

// Target is a normalized campaign label to look for in the campaign tables.
type Target struct {
	Label string
	// Base labels have no alt marker and must not match their alt variant.
	Base bool
}

// Matches reports whether a normalized row name belongs to this target. Base
// labels need the label text and no occurrence of the alt marker anywhere in
// the row; other labels need only the label text.
func (t Target) Matches(row string) bool {
	row = NormalizeLabel(row)
	if !strings.Contains(row, t.Label) {
		return false
	}
	if t.Base {
		return !strings.Contains(row, altMarker)
	}
	return true
}

// Targets is a deduplicated set ordered longest label first, so a specific
// label is tried before any label it contains.
type Targets []Target

// NewTargets normalizes names, dropping blanks and duplicates.
func NewTargets(names []string) Targets {
	seen := make(map[string]bool, len(names))
	var out Targets
	for _, n := range names {
		label := NormalizeLabel(n)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, Target{Label: label, Base: !strings.Contains(label, altMarker)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Label) != len(out[j].Label) {
			return len(out[i].Label) > len(out[j].Label)
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Match returns the first target in order that matches row.
func (ts Targets) Match(row string) (Target, bool) {
	for _, t := range ts {
		if t.Matches(row) {
			return t, true
		}
	}
	return Target{}, false
}

func (ts Targets) Labels() []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Label
	}
	return out
}

// Without returns the targets whose labels are not in done, in order.
func (ts Targets) Without(done map[string]bool) Targets {
	var out Targets
	for _, t := range ts {
		if !done[t.Label] {
			out = append(out, t)
		}
	}
	return out
}
