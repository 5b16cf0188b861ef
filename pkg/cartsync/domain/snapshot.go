package domain

// Snapshot is the ordered set of lines making up a cart at a point in time.
// Order carries no meaning beyond stable rendering.
type Snapshot []Line

// Count is the sum of line quantities.
func (s Snapshot) Count() int {
	var n int
	for _, l := range s {
		n += l.Quantity
	}
	return n
}

// Subtotal is the sum of line totals using each line's effective unit price.
func (s Snapshot) Subtotal() int64 {
	var total int64
	for _, l := range s {
		total += l.Total()
	}
	return total
}

// IndexOf returns the index of the line with the given key, or -1.
func (s Snapshot) IndexOf(k Key) int {
	for i := range s {
		if s[i].Key() == k {
			return i
		}
	}
	return -1
}

// IndexOfID returns the index of the line with the given line id, or -1.
func (s Snapshot) IndexOfID(lineID string) int {
	for i := range s {
		if s[i].LineID == lineID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, l := range s {
		out[i] = l.Clone()
	}
	return out
}

// Without returns a copy of s minus the line at index i.
func (s Snapshot) Without(i int) Snapshot {
	out := make(Snapshot, 0, len(s))
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// Normalize re-establishes the snapshot invariants: structurally invalid
// lines are dropped, lines sharing a key are folded into the first one by
// summing quantities, every quantity is clamped to its stock, and lines
// without an id get one. Lines past MaxLines are dropped. It returns the
// normalized copy and the lines it dropped.
func Normalize(s Snapshot) (Snapshot, []Line) {
	out := make(Snapshot, 0, len(s))
	var dropped []Line

	for _, l := range s {
		if l.Validate() != nil {
			dropped = append(dropped, l)
			continue
		}
		if i := out.IndexOf(l.Key()); i >= 0 {
			existing := &out[i]
			existing.Stock = PreferStock(existing.Stock, l.Stock)
			existing.Quantity += l.Quantity
			continue
		}
		if len(out) == MaxLines {
			dropped = append(dropped, l)
			continue
		}
		out = append(out, l.Clone())
	}

	for i := range out {
		out[i].Quantity = Clamp(out[i].Quantity, out[i].Stock)
		if out[i].LineID == "" {
			out[i].LineID = NewLineID(out[i].Key())
		}
	}

	return out, dropped
}
