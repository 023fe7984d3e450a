// Package codebuf implements the one-time-code input buffer used by the
// verification flows: a fixed number of single-digit cells filled from
// discrete keystrokes or a single paste, with focus-intent tracking for the
// caller. The buffer performs no I/O and holds no state beyond its cells.
package codebuf

// DefaultLength is the cell count used when New is given a non-positive length.
const DefaultLength = 6

// Buffer holds an ordered sequence of single-digit cells. The zero value is
// not usable; construct with New.
//
// Buffer is not safe for concurrent use; in the cooperative input model each
// buffer belongs to exactly one flow instance.
type Buffer struct {
	cells []byte // 0 means empty, otherwise '0'..'9'
}

// New returns a Buffer with the given number of cells. Lengths below 1 fall
// back to DefaultLength.
func New(length int) *Buffer {
	if length < 1 {
		length = DefaultLength
	}
	return &Buffer{cells: make([]byte, length)}
}

// Len returns the fixed cell count.
func (b *Buffer) Len() int {
	return len(b.cells)
}

// Insert filters non-digit characters out of raw and, if a digit remains,
// stores the first one in cell index. It returns the index the caller should
// focus next: index+1 after a successful insert into any cell but the last,
// otherwise index unchanged. Out-of-range indexes and digit-free input are
// no-ops.
func (b *Buffer) Insert(index int, raw string) int {
	if index < 0 || index >= len(b.cells) {
		return index
	}
	d, ok := firstDigit(raw)
	if !ok {
		return index
	}
	b.cells[index] = d
	if index < len(b.cells)-1 {
		return index + 1
	}
	return index
}

// Backspace applies the "delete empty, then retreat" policy: a populated
// cell is cleared and focus stays; an already-empty cell at index > 0 is
// left alone and focus retreats to index-1.
func (b *Buffer) Backspace(index int) int {
	if index < 0 || index >= len(b.cells) {
		return index
	}
	if b.cells[index] != 0 {
		b.cells[index] = 0
		return index
	}
	if index > 0 {
		return index - 1
	}
	return index
}

// PasteFill strips all non-digits from raw, truncates to the buffer length,
// and fills cells left to right starting at cell 0, overwriting prior
// content. Cells beyond the pasted digits are cleared. It returns the focus
// index: min(number of pasted digits, Len()-1).
func (b *Buffer) PasteFill(raw string) int {
	digits := keepDigits(raw, len(b.cells))
	for i := range b.cells {
		if i < len(digits) {
			b.cells[i] = digits[i]
		} else {
			b.cells[i] = 0
		}
	}
	focus := len(digits)
	if focus > len(b.cells)-1 {
		focus = len(b.cells) - 1
	}
	return focus
}

// IsComplete reports whether every cell holds a digit.
func (b *Buffer) IsComplete() bool {
	for _, c := range b.cells {
		if c == 0 {
			return false
		}
	}
	return true
}

// Value returns the concatenated code. Empty cells are skipped, so an
// incomplete buffer yields a partial string; callers gate on IsComplete
// before treating the value as a submittable code.
func (b *Buffer) Value() string {
	out := make([]byte, 0, len(b.cells))
	for _, c := range b.cells {
		if c != 0 {
			out = append(out, c)
		}
	}
	return string(out)
}

// Clear empties every cell.
func (b *Buffer) Clear() {
	for i := range b.cells {
		b.cells[i] = 0
	}
}

func firstDigit(s string) (byte, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return s[i], true
		}
	}
	return 0, false
}

func keepDigits(s string, max int) []byte {
	out := make([]byte, 0, max)
	for i := 0; i < len(s) && len(out) < max; i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return out
}
