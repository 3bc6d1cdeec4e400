package services

import "math/rand/v2"

var Facts = []string{
	"Real honey doesn't burn apparently.",
	"Humans are not capable of everything.",
	"Dentists are not real doctors.",
	"Some types of doctor professions are just downright weird.",
}

// FactPicker returns an index in [0, n).
type FactPicker func(n int) int

func RandomFact(pick FactPicker) string {
	if pick == nil {
		pick = rand.IntN
	}
	return Facts[pick(len(Facts))]
}
