package control

// slot is a single-element event queue fed by one producer. A pending stop
// is never displaced; informational events are dropped when the slot is busy.
type slot chan Event

func newSlot() slot {
	return make(slot, 1)
}

func (s slot) offer(ev Event) {
	select {
	case s <- ev:
		return
	default:
	}
	if !ev.IsStop() {
		return
	}
	select {
	case old := <-s:
		if old.IsStop() {
			ev = old
		}
	default:
	}
	// Only this producer sends, so the slot is empty here.
	s <- ev
}
