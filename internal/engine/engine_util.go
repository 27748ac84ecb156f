package engine

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// NextStreet returns the street that follows s and how many board cards it deals.
func NextStreet(s Street) StreetStep {
	for i, step := range StreetOrder {
		if step.Street == s && i+1 < len(StreetOrder) {
			return StreetOrder[i+1]
		}
	}
	return StreetStep{Street: StreetShowdown}
}

// VisibleBoard is how many board cards are public on street s.
func VisibleBoard(s Street) int {
	n := 0
	for _, step := range StreetOrder {
		n += step.Deal
		if step.Street == s {
			return n
		}
	}
	return n
}

func other(seat int) int { return 1 - seat }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
