package license

// Unlimited marks a quota column or policy field as unbounded. It bounds the
// count of a resource, not which resources are allowed: an unlimited domain
// quota still only authorizes domains that are actually listed.
const Unlimited = -1

// Policy captures the per-tier quota and feature defaults. Adding a tier is a
// single new entry here; nothing else branches on tier names.
type Policy struct {
	WidgetLimit     int
	DomainLimit     int
	BrandingEnabled bool
	CustomThemes    bool
	APIAccess       bool
	PrioritySupport bool
}

var tierPolicies = map[Tier]Policy{
	TierBasic: {
		WidgetLimit:     1,
		DomainLimit:     1,
		BrandingEnabled: true,
	},
	TierPro: {
		WidgetLimit:  3,
		DomainLimit:  3,
		CustomThemes: true,
		APIAccess:    true,
	},
	TierAgency: {
		WidgetLimit:     Unlimited,
		DomainLimit:     Unlimited,
		CustomThemes:    true,
		APIAccess:       true,
		PrioritySupport: true,
	},
}

// PolicyFor returns the policy for the given tier, falling back to the basic
// tier for unknown values so a corrupt row never grants elevated quota.
func PolicyFor(t Tier) Policy {
	if p, ok := tierPolicies[t]; ok {
		return p
	}
	return tierPolicies[TierBasic]
}

// ValidTier reports whether t is a known subscription tier.
func ValidTier(t Tier) bool {
	_, ok := tierPolicies[t]
	return ok
}
