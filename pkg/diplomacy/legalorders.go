package diplomacy

import "sort"

// LegalOrders enumerates the textual orders the current phase accepts for
// the given unit, in the canonical grammar from ordertext.go. The result is
// advisory (a client-side picklist); ValidateOrder remains the source of
// truth at submission time.
func LegalOrders(gs *GameState, m *DiplomacyMap, unit Unit) []string {
	switch gs.Phase {
	case PhaseMovement:
		return legalMovementOrders(gs, m, unit)
	case PhaseRetreat:
		return legalRetreatOrders(gs, m, unit)
	case PhaseBuild:
		return legalBuildOrders(gs, m, unit)
	default:
		return nil
	}
}

func legalMovementOrders(gs *GameState, m *DiplomacyMap, unit Unit) []string {
	isFleet := unit.Type == Fleet
	var texts []OrderText

	texts = append(texts, OrderText{Kind: TextHold, UnitType: unit.Type, Location: unit.Province, Coast: unit.Coast})

	for _, dest := range m.ProvincesAdjacentTo(unit.Province, unit.Coast, isFleet) {
		for _, coast := range destCoasts(m, unit, dest, isFleet) {
			texts = append(texts, OrderText{
				Kind: TextMove, UnitType: unit.Type, Location: unit.Province, Coast: unit.Coast,
				Target: dest, TargetCoast: coast,
			})
		}
	}

	// Convoy-eligible destinations: any other coastal province, for an army
	// standing on the coast. Convoy feasibility depends on which CONVOY
	// orders are actually placed this phase, so every coastal province not
	// already reachable overland is offered as a candidate.
	if unit.Type == Army {
		prov := m.Provinces[unit.Province]
		if prov != nil && prov.Type == Coastal {
			overland := make(map[string]bool)
			for _, dest := range m.ProvincesAdjacentTo(unit.Province, unit.Coast, false) {
				overland[dest] = true
			}
			for id, p := range m.Provinces {
				if id == unit.Province || overland[id] {
					continue
				}
				if p.Type != Coastal {
					continue
				}
				texts = append(texts, OrderText{
					Kind: TextMove, UnitType: unit.Type, Location: unit.Province,
					Target: id,
				})
			}
		}
	}

	// Support orders: for each unit adjacent to this one, support its hold
	// or any move it could make into a province adjacent to us.
	for _, other := range gs.Units {
		if other.Province == unit.Province {
			continue
		}
		if !m.Adjacent(unit.Province, unit.Coast, other.Province, other.Coast, isFleet) {
			continue
		}
		texts = append(texts, OrderText{
			Kind: TextSupportHold, UnitType: unit.Type, Location: unit.Province,
			AuxUnitType: other.Type, AuxLocation: other.Province,
		})
		otherIsFleet := other.Type == Fleet
		for _, dest := range m.ProvincesAdjacentTo(other.Province, other.Coast, otherIsFleet) {
			if !m.Adjacent(unit.Province, unit.Coast, dest, NoCoast, isFleet) {
				continue
			}
			texts = append(texts, OrderText{
				Kind: TextSupportMove, UnitType: unit.Type, Location: unit.Province,
				AuxUnitType: other.Type, AuxLocation: other.Province, AuxTarget: dest,
			})
		}
	}

	// Convoy orders: a fleet at sea may convoy any army at an adjacent
	// coastal province to any other coastal province.
	if unit.Type == Fleet {
		prov := m.Provinces[unit.Province]
		if prov != nil && prov.Type == Sea {
			for _, other := range gs.Units {
				if other.Type != Army {
					continue
				}
				op := m.Provinces[other.Province]
				if op == nil || op.Type != Coastal {
					continue
				}
				if !m.Adjacent(unit.Province, NoCoast, other.Province, NoCoast, true) {
					continue
				}
				for id, p := range m.Provinces {
					if id == other.Province || p.Type != Coastal {
						continue
					}
					texts = append(texts, OrderText{
						Kind: TextConvoy, UnitType: Fleet, Location: unit.Province,
						AuxUnitType: Army, AuxLocation: other.Province, AuxTarget: id,
					})
				}
			}
		}
	}

	return formatSorted(texts)
}

func legalRetreatOrders(gs *GameState, m *DiplomacyMap, unit Unit) []string {
	var dislodged *DislodgedUnit
	for i := range gs.Dislodged {
		if gs.Dislodged[i].DislodgedFrom == unit.Province && gs.Dislodged[i].Unit.Power == unit.Power {
			dislodged = &gs.Dislodged[i]
			break
		}
	}
	if dislodged == nil {
		return nil
	}

	isFleet := unit.Type == Fleet
	texts := []OrderText{{Kind: TextDisband, UnitType: unit.Type, Location: unit.Province}}

	forbidden := map[string]bool{dislodged.AttackerFrom: true}
	for _, p := range gs.StandoffProvinces {
		forbidden[p] = true
	}

	for _, dest := range m.ProvincesAdjacentTo(unit.Province, unit.Coast, isFleet) {
		if forbidden[dest] || gs.UnitAt(dest) != nil {
			continue
		}
		for _, coast := range destCoasts(m, unit, dest, isFleet) {
			texts = append(texts, OrderText{
				Kind: TextMove, UnitType: unit.Type, Location: unit.Province,
				Target: dest, TargetCoast: coast,
			})
		}
	}

	return formatSorted(texts)
}

func legalBuildOrders(gs *GameState, m *DiplomacyMap, unit Unit) []string {
	budget := gs.SupplyCenterCount(unit.Power) - gs.UnitCount(unit.Power)
	if budget <= 0 {
		return nil
	}
	var texts []OrderText
	for _, id := range HomeCenters(unit.Power) {
		if gs.SupplyCenters[id] != unit.Power || gs.UnitAt(id) != nil {
			continue
		}
		prov := m.Provinces[id]
		if prov == nil {
			continue
		}
		texts = append(texts, OrderText{Kind: TextBuild, UnitType: Army, Location: id})
		if prov.Type != Coastal {
			continue
		}
		if len(prov.Coasts) > 0 {
			for _, c := range prov.Coasts {
				texts = append(texts, OrderText{Kind: TextBuild, UnitType: Fleet, Location: id, Coast: c})
			}
		} else {
			texts = append(texts, OrderText{Kind: TextBuild, UnitType: Fleet, Location: id})
		}
	}
	texts = append(texts, OrderText{Kind: TextWaive})
	return formatSorted(texts)
}

// destCoasts returns the coast(s) to offer for a move into dest, given the
// unit's current position. Armies and non-split destinations get NoCoast.
func destCoasts(m *DiplomacyMap, unit Unit, dest string, isFleet bool) []Coast {
	if !isFleet || !m.HasCoasts(dest) {
		return []Coast{NoCoast}
	}
	coasts := m.FleetCoastsTo(unit.Province, unit.Coast, dest)
	if len(coasts) == 0 {
		return []Coast{NoCoast}
	}
	return coasts
}

func formatSorted(texts []OrderText) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		out = append(out, FormatOrderText([]OrderText{t}))
	}
	sort.Strings(out)
	return out
}
