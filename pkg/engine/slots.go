package engine

// slotStack hands out fixed buffer/timestamp slots to in-flight
// requests. A slot returns to the stack only when its completion is
// reaped, so a new submission can never target a slot another request
// still owns, even when completions arrive out of order.
type slotStack struct {
	free []int
}

func newSlotStack(n int) *slotStack {
	s := &slotStack{free: make([]int, n)}
	for i := range s.free {
		s.free[i] = i
	}
	return s
}

func (s *slotStack) available() int { return len(s.free) }

func (s *slotStack) pop() int {
	idx := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return idx
}

func (s *slotStack) push(idx int) {
	s.free = append(s.free, idx)
}
