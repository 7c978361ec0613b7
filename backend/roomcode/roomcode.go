package roomcode

import (
	"math/rand/v2"
)

const (
	DefaultLength   = 4
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator draws short human-shareable room codes. Each symbol is drawn
// independently and uniformly from the alphabet. Codes are not unique by
// themselves; the caller checks them against active rooms.
type Generator struct {
	alphabet []rune
	length   int
	intN     func(int) int
}

func NewGenerator(length int, alphabet string) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return &Generator{
		alphabet: []rune(alphabet),
		length:   length,
		intN:     rand.IntN,
	}
}

func (g *Generator) Generate() string {
	code := make([]rune, g.length)
	for i := range code {
		code[i] = g.alphabet[g.intN(len(g.alphabet))]
	}
	return string(code)
}
