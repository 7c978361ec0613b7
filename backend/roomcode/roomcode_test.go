package roomcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Generate(t *testing.T) {
	g := NewGenerator(DefaultLength, DefaultAlphabet)

	for i := 0; i < 1000; i++ {
		code := g.Generate()
		assert.Len(t, code, DefaultLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(DefaultAlphabet, r), "unexpected symbol %q in %q", r, code)
		}
	}
}

func TestGenerator_Defaults(t *testing.T) {
	g := NewGenerator(0, "")
	assert.Len(t, g.Generate(), DefaultLength)
}

func TestGenerator_UsesEverySymbol(t *testing.T) {
	g := NewGenerator(6, "AB")
	var n int
	g.intN = func(max int) int {
		assert.Equal(t, 2, max)
		n++
		return n % 2
	}

	assert.Equal(t, "BABABA", g.Generate())
}

func TestGenerator_CustomAlphabet(t *testing.T) {
	g := NewGenerator(8, "xyz")
	code := g.Generate()

	assert.Len(t, code, 8)
	assert.Empty(t, strings.Trim(code, "xyz"))
}
