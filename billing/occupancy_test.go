package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// ROLE PRIORITY TESTS
// =============================================================================

func link(resident string, role billing.OccupantRole) billing.OccupancyLink {
	return billing.OccupancyLink{
		ID:         "link-" + resident,
		ResidentID: billing.ResidentID(resident),
		PropertyID: "prop-1",
		Role:       role,
		Active:     true,
		MoveInDate: billing.NewDate(2025, time.January, 1),
	}
}

func TestResolveBillableOccupant_TenantOutranksLandlord(t *testing.T) {
	// GIVEN: an active non_resident_landlord and an active tenant
	// WHEN: resolving the billable occupant
	// THEN: the tenant is selected, never the landlord

	links := []billing.OccupancyLink{
		link("landlord", billing.RoleNonResidentLandlord),
		link("tenant", billing.RoleTenant),
	}

	occ := billing.ResolveBillableOccupant(links, true)
	if assert.NotNil(t, occ) {
		assert.Equal(t, billing.ResidentID("tenant"), occ.ResidentID)
	}
}

func TestResolveBillableOccupant_ResidentLandlordOutranksNonResident(t *testing.T) {
	links := []billing.OccupancyLink{
		link("absentee", billing.RoleNonResidentLandlord),
		link("owner", billing.RoleResidentLandlord),
	}

	occ := billing.ResolveBillableOccupant(links, true)
	if assert.NotNil(t, occ) {
		assert.Equal(t, billing.ResidentID("owner"), occ.ResidentID)
	}
}

func TestResolveBillableOccupant_NonResidentLandlordOnlyWhenVacantBillingOn(t *testing.T) {
	// GIVEN: only a non_resident_landlord link
	// THEN: billable only under the vacant-billing policy

	links := []billing.OccupancyLink{link("absentee", billing.RoleNonResidentLandlord)}

	assert.Nil(t, billing.ResolveBillableOccupant(links, false))

	occ := billing.ResolveBillableOccupant(links, true)
	if assert.NotNil(t, occ) {
		assert.Equal(t, billing.ResidentID("absentee"), occ.ResidentID)
	}
}

func TestResolveBillableOccupant_NonBillableRolesIgnored(t *testing.T) {
	// Staff, caretakers, household members etc. never receive invoices,
	// even with vacant billing enabled.
	links := []billing.OccupancyLink{
		link("dev", billing.RoleDeveloper),
		link("co", billing.RoleCoResident),
		link("kid", billing.RoleHouseholdMember),
		link("staff", billing.RoleDomesticStaff),
		link("keeper", billing.RoleCaretaker),
		link("builder", billing.RoleContractor),
	}

	assert.Nil(t, billing.ResolveBillableOccupant(links, true))
}

func TestResolveBillableOccupant_InactiveLinksIgnored(t *testing.T) {
	inactive := link("gone", billing.RoleTenant)
	inactive.Active = false

	links := []billing.OccupancyLink{inactive, link("owner", billing.RoleResidentLandlord)}

	occ := billing.ResolveBillableOccupant(links, false)
	if assert.NotNil(t, occ) {
		assert.Equal(t, billing.ResidentID("owner"), occ.ResidentID)
	}
}

func TestResolveBillableOccupant_NoLinks(t *testing.T) {
	assert.Nil(t, billing.ResolveBillableOccupant(nil, true))
}
