package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is a skill level a worker belongs to and a call requires.
// Tiers are totally ordered by rank: a worker can handle any call whose
// required tier is at or below its own.
type Tier int

const (
	TierRespondent Tier = iota
	TierManager
	TierDirector
)

// NumTiers is the fixed number of tiers
const NumTiers = 3

// AllTiers lists every tier from lowest to highest
var AllTiers = []Tier{TierRespondent, TierManager, TierDirector}

var tierNames = [NumTiers]string{"respondent", "manager", "director"}

// Valid reports whether t is one of the known tiers
func (t Tier) Valid() bool {
	return t >= 0 && t < NumTiers
}

// String returns the lower-case tier name
func (t Tier) String() string {
	if !t.Valid() {
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
	return tierNames[t]
}

// Rank returns the integer rank of the tier
func (t Tier) Rank() int {
	return int(t)
}

// IsHighest reports whether no tier ranks above t
func (t Tier) IsHighest() bool {
	return t == NumTiers-1
}

// Next returns the tier directly above t, or false if t is the highest
func (t Tier) Next() (Tier, bool) {
	if !t.Valid() || t.IsHighest() {
		return t, false
	}
	return t + 1, true
}

// ParseTier accepts a tier name ("manager") or rank ("1")
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if s == name {
			return Tier(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown tier %q", s)
	}
	t := Tier(n)
	if !t.Valid() {
		return 0, fmt.Errorf("tier rank %d out of range [0, %d]", n, NumTiers-1)
	}
	return t, nil
}

// MarshalJSON encodes the tier by name
func (t Tier) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return []byte(strconv.Itoa(int(t))), nil
	}
	return []byte(strconv.Quote(t.String())), nil
}

// UnmarshalJSON accepts either a tier name or a numeric rank
func (t *Tier) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
