// Package quack supplies the duck-themed phrases used in responses.
package quack

import "math/rand/v2"

type Kind string

const (
	Success       Kind = "success"
	Encouragement Kind = "encouragement"
	Celebration   Kind = "celebration"
	Error         Kind = "error"
)

var phrases = map[Kind][]string{
	Success: {
		"Quack-tastic!",
		"Duck yeah!",
		"That's absolutely ducky!",
		"Rubber duck approved!",
		"Splendidly ducky!",
	},
	Encouragement: {
		"You've got this, duckling!",
		"Keep paddling forward!",
		"Every duck has their day!",
		"Smooth sailing ahead!",
	},
	Celebration: {
		"🦆 Quack! Outstanding work!",
		"Time to celebrate with some breadcrumbs!",
		"You're one productive duck!",
		"Absolutely quack-tacular!",
	},
	Error: {
		"Oops! Even ducks hit rough waters sometimes.",
		"Don't worry, we'll get through this together!",
		"Every duck faces challenges!",
	},
}

// Pick returns a random phrase of the given kind.
func Pick(kind Kind) string {
	set := phrases[kind]
	if len(set) == 0 {
		set = phrases[Success]
	}
	return set[rand.IntN(len(set))]
}
