// Package difficulty maps round numbers to difficulty tiers, time budgets,
// and the visual-effect parameters applied at each tier. Everything here is
// pure and deterministic so round pacing can be reasoned about (and tested)
// without any game state.
package difficulty

import (
	"net/url"
	"time"
)

// Tier is a coarse difficulty bucket derived purely from the round number.
type Tier string

const (
	TierEasy    Tier = "easy"
	TierMedium  Tier = "medium"
	TierHard    Tier = "hard"
	TierExtreme Tier = "extreme"
)

// Escalation breakpoints. The tier steps up every tierSpan rounds; the time
// budget halves every budgetSpan rounds until it reaches budgetFloor.
const (
	tierSpan    = 3
	budgetSpan  = 6
	budgetBase  = 30 * time.Second
	budgetFloor = 7 * time.Second
)

// TierFor returns the difficulty tier for a 1-based round number.
// Rounds 1-3 are easy, 4-6 medium, 7-9 hard, 10 and up extreme.
// Non-positive rounds are treated as round 1.
func TierFor(round int) Tier {
	if round < 1 {
		round = 1
	}
	switch (round - 1) / tierSpan {
	case 0:
		return TierEasy
	case 1:
		return TierMedium
	case 2:
		return TierHard
	default:
		return TierExtreme
	}
}

// TimeBudgetFor returns the guessing time budget for a 1-based round number.
// The budget starts at 30s and halves every 6 rounds down to a 7s floor:
// rounds 1-6 get 30s, 7-12 get 15s, 13 and up get 7s.
func TimeBudgetFor(round int) time.Duration {
	if round < 1 {
		round = 1
	}
	budget := budgetBase
	for i := (round - 1) / budgetSpan; i > 0; i-- {
		budget /= 2
		if budget <= budgetFloor {
			return budgetFloor
		}
	}
	return budget
}

// Effect parameter names understood by the image pipeline. The preloader
// strips these from a URL on its degraded retry.
const (
	paramGrayscale = "grayscale"
	paramBlur      = "blur"
)

// EffectParams returns the query parameters the given tier applies to item
// URLs. Easy and medium tiers render unmodified; hard drops color; extreme
// drops color and blurs.
func EffectParams(tier Tier) url.Values {
	switch tier {
	case TierHard:
		return url.Values{paramGrayscale: []string{"1"}}
	case TierExtreme:
		return url.Values{
			paramGrayscale: []string{"1"},
			paramBlur:      []string{"2"},
		}
	default:
		return nil
	}
}

// EffectKeys lists every effect parameter name any tier can apply.
func EffectKeys() []string {
	return []string{paramGrayscale, paramBlur}
}
