package rnn

// arena is a cell's fixed scratch memory: one float32 block carved into
// named slots at construction and reused in place on every step. Slots never
// overlap and are capped so a kernel cannot write past its own slot.
type arena struct {
	buf   []float32
	slots []slotRegion
}

type slotRegion struct {
	name string
	off  int
	size int
}

type slotSpec struct {
	name string
	size int
}

func newArena(specs ...slotSpec) *arena {
	total := 0
	for _, s := range specs {
		total += s.size
	}
	a := &arena{
		buf:   make([]float32, total),
		slots: make([]slotRegion, len(specs)),
	}
	off := 0
	for i, s := range specs {
		a.slots[i] = slotRegion{name: s.name, off: off, size: s.size}
		off += s.size
	}
	return a
}

// at returns slot i.
func (a *arena) at(i int) []float32 {
	s := a.slots[i]
	return a.buf[s.off : s.off+s.size : s.off+s.size]
}

// zero clears the listed slots.
func (a *arena) zero(slots ...int) {
	for _, i := range slots {
		clear(a.at(i))
	}
}

// Slot names a region of a cell's scratch arena, for inspection.
type Slot struct {
	Name string
	Size int
}

func (a *arena) layout() []Slot {
	out := make([]Slot, len(a.slots))
	for i, s := range a.slots {
		out[i] = Slot{Name: s.name, Size: s.size}
	}
	return out
}
