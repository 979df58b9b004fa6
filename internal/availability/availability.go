// Package availability decides which creatures can occupy a raid of a
// given tier at a given gym and time.
//
// Each creature may carry rulesets: a list of rule groups where the
// groups are OR-ed and the rules inside a group are AND-ed. A creature
// with no rulesets is available anywhere, any time, once its tier
// matches.
package availability

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azelphur/Monord/internal/geo"
)

type ruleKind string

const (
	ruleTime   ruleKind = "time"
	ruleRegion ruleKind = "region"
)

type rule struct {
	Type ruleKind `json:"type"`

	// time rule: a daily local clock window ("09:00") or an absolute
	// UTC window ("2024-06-01T00:00:00Z") for seasonal bosses. Both
	// ends are inclusive; a clock window with start > end wraps past
	// midnight.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// region rule: name of a polygon in the region table.
	Region string `json:"region,omitempty"`
}

// Rulesets is the decoded form of a creature's availability column.
type Rulesets [][]rule

// ParseRulesets decodes and validates the rulesets JSON.
func ParseRulesets(raw string) (Rulesets, error) {
	var rs Rulesets
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, fmt.Errorf("availability: decode rulesets: %w", err)
	}
	for _, group := range rs {
		for _, r := range group {
			switch r.Type {
			case ruleTime:
				if err := checkWindow(r); err != nil {
					return nil, err
				}
			case ruleRegion:
				if r.Region == "" {
					return nil, fmt.Errorf("availability: region rule without a region name")
				}
			default:
				return nil, fmt.Errorf("availability: unknown rule type %q", r.Type)
			}
		}
	}
	return rs, nil
}

// Match reports whether any rule group passes for the given local time
// and location. Empty rulesets always match.
func (rs Rulesets) Match(at time.Time, loc geo.Point, regions map[string]geo.Polygon) bool {
	if len(rs) == 0 {
		return true
	}
	for _, group := range rs {
		if groupMatches(group, at, loc, regions) {
			return true
		}
	}
	return false
}

func groupMatches(group []rule, at time.Time, loc geo.Point, regions map[string]geo.Polygon) bool {
	for _, r := range group {
		switch r.Type {
		case ruleTime:
			if !windowMatches(r, at) {
				return false
			}
		case ruleRegion:
			poly, ok := regions[r.Region]
			if !ok || !poly.Contains(loc) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func checkWindow(r rule) error {
	if isInstant(r.Start) || isInstant(r.End) {
		start, err := parseInstant(r.Start)
		if err != nil {
			return fmt.Errorf("availability: bad start %q: %w", r.Start, err)
		}
		end, err := parseInstant(r.End)
		if err != nil {
			return fmt.Errorf("availability: bad end %q: %w", r.End, err)
		}
		if end.Before(start) {
			return fmt.Errorf("availability: window %q..%q ends before it starts", r.Start, r.End)
		}
		return nil
	}
	if _, err := parseClock(r.Start); err != nil {
		return fmt.Errorf("availability: bad start %q: %w", r.Start, err)
	}
	if _, err := parseClock(r.End); err != nil {
		return fmt.Errorf("availability: bad end %q: %w", r.End, err)
	}
	return nil
}

// windowMatches evaluates one time rule. Instant windows compare in
// UTC; clock windows compare against the local clock of at.
func windowMatches(r rule, at time.Time) bool {
	if isInstant(r.Start) {
		start, err1 := parseInstant(r.Start)
		end, err2 := parseInstant(r.End)
		if err1 != nil || err2 != nil {
			return false
		}
		u := at.UTC()
		return !u.Before(start) && !u.After(end)
	}
	start, _ := parseClock(r.Start)
	end, _ := parseClock(r.End)
	return inWindow(minuteOfDay(at), start, end)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inWindow is inclusive at both ends; start > end wraps past midnight.
func inWindow(m, start, end int) bool {
	if start <= end {
		return m >= start && m <= end
	}
	return m >= start || m <= end
}

const instantLayout = "2006-01-02T15:04:05Z"

func isInstant(s string) bool { return strings.ContainsRune(s, 'T') }

func parseInstant(s string) (time.Time, error) {
	return time.Parse(instantLayout, s)
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
