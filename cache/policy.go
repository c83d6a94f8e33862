package cache

// DefaultPromotionThreshold is the number of hits in a tier after which an
// entry moves to the next hotter tier.
const DefaultPromotionThreshold = 5

// Policy decides whether an entry that was just read from the tier at
// tierIndex (0 is the hottest) should move one tier hotter. Eviction is not
// a policy decision; full tiers always drop their least recently used entry.
type Policy interface {
	ShouldPromote(e Entry, tierIndex int) bool
}

// ThresholdPolicy promotes once an entry has been read Threshold times since
// it was written or last promoted.
type ThresholdPolicy struct {
	Threshold int
}

var _ Policy = ThresholdPolicy{}

func (p ThresholdPolicy) ShouldPromote(e Entry, tierIndex int) bool {
	if tierIndex <= 0 {
		return false
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultPromotionThreshold
	}
	return e.AccessCount >= threshold
}

// NeverPromote keeps entries in the tier they were written to.
type NeverPromote struct{}

func (NeverPromote) ShouldPromote(Entry, int) bool { return false }
