package billing

// =============================================================================
// OCCUPANCY RESOLVER - Who gets the invoice
// =============================================================================

// billablePriority orders the roles that can receive an invoice, highest
// first. A tenant always outranks a resident landlord; a non-resident
// landlord is only billable under the vacant-billing policy. Every other
// role (developer, co_resident, household_member, domestic_staff, caretaker,
// contractor) is never billable.
var billablePriority = []OccupantRole{
	RoleTenant,
	RoleResidentLandlord,
	RoleNonResidentLandlord,
}

// ResolveBillableOccupant picks the single occupancy link to invoice for a
// property, or nil when no link qualifies (skip the property this run).
//
// includeVacant is the orchestrator-supplied vacant-billing policy flag, not
// a property attribute: it admits the non_resident_landlord role into the
// candidate set. Pure function, no side effects.
func ResolveBillableOccupant(activeLinks []OccupancyLink, includeVacant bool) *OccupancyLink {
	for _, role := range billablePriority {
		if role == RoleNonResidentLandlord && !includeVacant {
			continue
		}
		for i := range activeLinks {
			link := &activeLinks[i]
			if link.Active && link.Role == role {
				return link
			}
		}
	}
	return nil
}
