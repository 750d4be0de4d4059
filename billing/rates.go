package billing

import (
	"context"
	"fmt"
)

// =============================================================================
// RATE RESOLVER - Which profile applies to a property
// =============================================================================

// RateResolver determines the effective rate profile for a property: a direct
// override on the property always wins; otherwise the property type's default
// applies; otherwise the property has no billing relationship.
//
// Override and default are never merged.
type RateResolver struct {
	Profiles   RateProfileRepo
	Properties PropertyRepo
}

// ResolveEffectiveProfile returns the profile to bill with, or nil when none
// resolves (the property is skipped, not errored).
func (r *RateResolver) ResolveEffectiveProfile(ctx context.Context, prop Property) (*RateProfile, error) {
	if prop.RateProfileID != nil {
		profile, err := r.Profiles.ProfileByID(ctx, *prop.RateProfileID)
		if err != nil {
			return nil, fmt.Errorf("override profile %s: %w", *prop.RateProfileID, err)
		}
		if profile == nil || !profile.Active {
			return nil, nil
		}
		return profile, nil
	}

	if prop.PropertyTypeID == nil {
		return nil, nil
	}

	ptype, err := r.Properties.PropertyTypeByID(ctx, *prop.PropertyTypeID)
	if err != nil {
		return nil, fmt.Errorf("property type %s: %w", *prop.PropertyTypeID, err)
	}
	if ptype == nil || ptype.DefaultProfileID == nil {
		return nil, nil
	}

	profile, err := r.Profiles.ProfileByID(ctx, *ptype.DefaultProfileID)
	if err != nil {
		return nil, fmt.Errorf("default profile %s: %w", *ptype.DefaultProfileID, err)
	}
	if profile == nil || !profile.Active {
		return nil, nil
	}
	return profile, nil
}
