// Package pulse builds Code::Stats pulse payloads and delivers them over HTTPS.
package pulse

import (
	"sort"
	"time"
)

// XP is one accumulated counter inside a pulse.
type XP struct {
	Language string `json:"language"`
	XP       uint32 `json:"xp"`
}

// Pulse is the request body for POST api/my/pulses. It is built once per
// flush and never mutated afterwards.
type Pulse struct {
	CodedAt string `json:"coded_at"`
	XPs     []XP   `json:"xps"`
}

// Build constructs a pulse from an accumulator snapshot. Entries are sorted
// by language name so the wire output is deterministic.
func Build(snapshot map[string]uint32, codedAt time.Time) Pulse {
	xps := make([]XP, 0, len(snapshot))
	for lang, n := range snapshot {
		xps = append(xps, XP{Language: lang, XP: n})
	}
	sort.Slice(xps, func(i, j int) bool { return xps[i].Language < xps[j].Language })
	return Pulse{
		CodedAt: codedAt.Format(time.RFC3339),
		XPs:     xps,
	}
}

// Total returns the XP sum carried by the pulse.
func (p Pulse) Total() uint32 {
	var total uint32
	for _, x := range p.XPs {
		total += x.XP
	}
	return total
}
