package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder_Basic(t *testing.T) {
	t.Parallel()

	err := Newf("pattern not found for %s", "OG Kush_flowering").
		Component("detector").
		Category(CategoryNotFound).
		Build()

	require.Error(t, err)
	assert.Equal(t, "pattern not found for OG Kush_flowering", err.Error())
	assert.Equal(t, "detector", err.GetComponent())
	assert.Equal(t, string(CategoryNotFound), err.GetCategory())
	assert.False(t, err.GetTimestamp().IsZero())
}

func TestErrorBuilder_DefaultsToGenericCategory(t *testing.T) {
	t.Parallel()

	err := Newf("something broke").Component("rules").Build()
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
}

func TestErrorBuilder_Context(t *testing.T) {
	t.Parallel()

	err := Newf("store write failed").
		Component("dismissal").
		Category(CategoryDatabase).
		Context("cultivation_id", "c1").
		Context("parameter", "pH").
		Build()

	ctx := err.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "c1", ctx["cultivation_id"])
	assert.Equal(t, "pH", ctx["parameter"])

	// Mutating the returned map must not affect the error
	ctx["parameter"] = "EC"
	assert.Equal(t, "pH", err.GetContext()["parameter"])
}

func TestErrorBuilder_PriorityValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority string
		want     string
	}{
		{"valid critical", PriorityCritical, PriorityCritical},
		{"valid low", PriorityLow, PriorityLow},
		{"invalid falls back to medium", "urgent", PriorityMedium},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Newf("x").Priority(tt.priority).Build()
			assert.Equal(t, tt.want, err.GetPriority())
		})
	}
}

func TestUnwrap_PreservesSentinel(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	wrapped := New(fmt.Errorf("outer: %w", sentinel)).
		Category(CategoryDatabase).
		Build()

	assert.True(t, Is(wrapped, sentinel))
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("no baseline").Category(CategoryNotFound).Build()
	assert.True(t, IsNotFound(err))
	assert.True(t, IsCategory(err, CategoryNotFound))
	assert.False(t, IsCategory(err, CategoryDatabase))

	// Plain errors carry no category
	assert.False(t, IsNotFound(NewStd("plain")))
}

func TestIs_MatchesByCategory(t *testing.T) {
	t.Parallel()

	a := Newf("a").Category(CategoryAIAnalysis).Build()
	b := Newf("b").Category(CategoryAIAnalysis).Build()
	c := Newf("c").Category(CategoryTimeout).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}
