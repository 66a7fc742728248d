package enrich

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextBuilder_AnchorWindows(t *testing.T) {
	filler := strings.Repeat("x", 100)
	text := filler + " You may return within 30 days. " + filler + " Final sale items excluded. " + filler

	got, found := NewContextBuilder(10, 2000).Build(text)
	assert.True(t, found)
	assert.Contains(t, got, "return within 30 days")
	assert.Contains(t, got, "Final sale")
	assert.Contains(t, got, windowSeparator)
	assert.NotContains(t, got, filler)
}

func TestContextBuilder_MergesOverlaps(t *testing.T) {
	text := "Return policy: returns accepted for 30 days."
	got, found := NewContextBuilder(50, 2000).Build(text)
	assert.True(t, found)
	assert.Equal(t, text, got)
}

func TestContextBuilder_FallsBackToLeadingText(t *testing.T) {
	text := "Your order has shipped and will arrive Tuesday. Thanks for shopping!"

	got, found := NewContextBuilder(50, 20).Build(text)
	assert.False(t, found)
	assert.Equal(t, "Your order has shipp", got)

	// an anchor window larger than the budget also falls back
	long := "Return policy " + strings.Repeat("y", 500)
	got, found = NewContextBuilder(300, 200).Build(long)
	assert.False(t, found)
	assert.Len(t, got, 200)
}

func TestContextBuilder_RuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 30) + " return policy " + strings.Repeat("ü", 30)
	got, found := NewContextBuilder(7, 2000).Build(text)
	assert.True(t, found)
	assert.True(t, strings.Contains(got, "return policy"))
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}

func TestContextBuilder_Empty(t *testing.T) {
	got, found := NewContextBuilder(10, 100).Build("   ")
	assert.False(t, found)
	assert.Empty(t, got)
}
