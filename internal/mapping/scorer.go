package mapping

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxScore caps every composed score.
const MaxScore = 100

// Entity is one side of a comparison. Normalized is filled by the engine.
type Entity struct {
	ID         int64
	Name       string
	Normalized string
	Price      *decimal.Decimal
	ExternalID string
}

func newEntity(id int64, name string, price *decimal.Decimal, externalID string) Entity {
	return Entity{ID: id, Name: name, Normalized: NormalizeName(name), Price: price, ExternalID: externalID}
}

// CandidateScorer rates how likely local and linked describe the same thing.
type CandidateScorer interface {
	Score(local, linked Entity) int
}

// NameExactScorer matches identical normalized names.
type NameExactScorer struct {
	Points int
}

func (s NameExactScorer) Score(local, linked Entity) int {
	if local.Normalized != "" && local.Normalized == linked.Normalized {
		return s.Points
	}
	return 0
}

// NameContainsScorer matches when either normalized name contains the other.
// Identical names are left to NameExactScorer.
type NameContainsScorer struct {
	Points int
}

func (s NameContainsScorer) Score(local, linked Entity) int {
	a, b := local.Normalized, linked.Normalized
	if a == "" || b == "" || a == b {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return s.Points
	}
	return 0
}

// PriceProximityScorer rewards equal prices, and less so prices within Near.
type PriceProximityScorer struct {
	ExactPoints int
	NearPoints  int
	Near        decimal.Decimal
}

var priceEpsilon = decimal.RequireFromString("0.01")

func (s PriceProximityScorer) Score(local, linked Entity) int {
	if local.Price == nil || linked.Price == nil {
		return 0
	}
	diff := local.Price.Sub(*linked.Price).Abs()
	switch {
	case diff.LessThanOrEqual(priceEpsilon):
		return s.ExactPoints
	case diff.LessThanOrEqual(s.Near):
		return s.NearPoints
	}
	return 0
}

// Weighted is one term of a WeightedScorer. A Bonus term only counts once
// some non-bonus term scored.
type Weighted struct {
	Scorer CandidateScorer
	Weight float64
	Bonus  bool
}

// WeightedScorer sums its terms and caps the total at MaxScore.
type WeightedScorer struct {
	Terms []Weighted
}

func (w WeightedScorer) Score(local, linked Entity) int {
	var base, bonus float64
	for _, term := range w.Terms {
		weight := term.Weight
		if weight == 0 {
			weight = 1
		}
		v := float64(term.Scorer.Score(local, linked)) * weight
		if term.Bonus {
			bonus += v
		} else {
			base += v
		}
	}
	if base <= 0 {
		return 0
	}
	total := int(base + bonus)
	if total > MaxScore {
		return MaxScore
	}
	return total
}

// DefaultScorer is name-exact 80, name-contains 55, and a price bonus of 20
// (equal) or 10 (within 10) on top of a name match.
func DefaultScorer() CandidateScorer {
	return WeightedScorer{Terms: []Weighted{
		{Scorer: NameExactScorer{Points: 80}},
		{Scorer: NameContainsScorer{Points: 55}},
		{Scorer: PriceProximityScorer{ExactPoints: 20, NearPoints: 10, Near: decimal.NewFromInt(10)}, Bonus: true},
	}}
}

// best returns the highest scoring linked entity, the first one winning ties.
func best(scorer CandidateScorer, local Entity, linked []Entity) (Entity, int) {
	var (
		winner Entity
		top    int
	)
	for _, candidate := range linked {
		if candidate.ID == local.ID {
			continue
		}
		if score := scorer.Score(local, candidate); score > top {
			winner, top = candidate, score
		}
	}
	return winner, top
}
