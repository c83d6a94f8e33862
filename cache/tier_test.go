package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrdersByWeight(t *testing.T) {
	r, err := NewRegistry(
		Tier{Name: "cold", MaxSize: 5, DefaultTTL: time.Minute, Weight: 1},
		Tier{Name: "hot", MaxSize: 2, DefaultTTL: time.Second, Weight: 10},
		Tier{Name: "warm", MaxSize: 3, DefaultTTL: time.Second, Weight: 5},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "hot", r.Hottest().Name)
	assert.Equal(t, "cold", r.Coldest().Name)
	assert.Equal(t, "warm", r.At(1).Name)

	i, tier, ok := r.Lookup("warm")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, 3, tier.MaxSize)

	_, _, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryEqualWeightKeepsOrder(t *testing.T) {
	r, err := NewRegistry(
		Tier{Name: "a", MaxSize: 1, DefaultTTL: time.Second},
		Tier{Name: "b", MaxSize: 1, DefaultTTL: time.Second},
	)
	require.NoError(t, err)
	assert.Equal(t, "a", r.At(0).Name)
	assert.Equal(t, "b", r.At(1).Name)
}

func TestRegistryTiersIsACopy(t *testing.T) {
	r, err := NewRegistry(threeTiers()...)
	require.NoError(t, err)
	tiers := r.Tiers()
	tiers[0].Name = "changed"
	assert.Equal(t, "hot", r.Hottest().Name)
}

func TestRegistryRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"no name", []Tier{{MaxSize: 1, DefaultTTL: time.Second}}},
		{"zero size", []Tier{{Name: "a", DefaultTTL: time.Second}}},
		{"zero ttl", []Tier{{Name: "a", MaxSize: 1}}},
		{"duplicate", []Tier{
			{Name: "a", MaxSize: 1, DefaultTTL: time.Second, Weight: 2},
			{Name: "a", MaxSize: 1, DefaultTTL: time.Second, Weight: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.tiers...)
			assert.ErrorIs(t, err, ErrInvalidTier)
		})
	}
}

func TestThresholdPolicy(t *testing.T) {
	p := ThresholdPolicy{Threshold: 3}
	assert.False(t, p.ShouldPromote(Entry{AccessCount: 2}, 1))
	assert.True(t, p.ShouldPromote(Entry{AccessCount: 3}, 1))
	assert.False(t, p.ShouldPromote(Entry{AccessCount: 100}, 0), "hottest tier never promotes")

	var zero ThresholdPolicy
	assert.False(t, zero.ShouldPromote(Entry{AccessCount: DefaultPromotionThreshold - 1}, 2))
	assert.True(t, zero.ShouldPromote(Entry{AccessCount: DefaultPromotionThreshold}, 2))

	assert.False(t, NeverPromote{}.ShouldPromote(Entry{AccessCount: 1000}, 2))
}
