package repository

// PickReceiver returns the receiver to assign after cursor. eligible must be
// sorted ascending. When cursor is unset or no longer eligible the lowest
// eligible identity is chosen.
func PickReceiver(eligible []int64, cursor *int64) (int64, bool) {
	if len(eligible) == 0 {
		return 0, false
	}
	if cursor == nil {
		return eligible[0], true
	}
	for i, id := range eligible {
		if id == *cursor {
			return eligible[(i+1)%len(eligible)], true
		}
	}
	return eligible[0], true
}
