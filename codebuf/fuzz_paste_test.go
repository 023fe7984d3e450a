package codebuf

import "testing"

// FuzzPasteFill checks the paste invariants for arbitrary input: the value is
// always the digit prefix of the input (at most Len digits), focus stays in
// range, and completeness matches a full cell count.
func FuzzPasteFill(f *testing.F) {
	f.Add("123456")
	f.Add("12-34 56")
	f.Add("")
	f.Add("no digits at all")
	f.Add("00000000000000000000")

	f.Fuzz(func(t *testing.T, raw string) {
		b := New(6)
		focus := b.PasteFill(raw)

		want := ""
		for i := 0; i < len(raw) && len(want) < 6; i++ {
			if raw[i] >= '0' && raw[i] <= '9' {
				want += string(raw[i])
			}
		}

		if got := b.Value(); got != want {
			t.Fatalf("value = %q, want digit prefix %q of %q", got, want, raw)
		}
		if focus < 0 || focus > 5 {
			t.Fatalf("focus %d out of range", focus)
		}
		if b.IsComplete() != (len(want) == 6) {
			t.Fatalf("complete = %v with %d digits", b.IsComplete(), len(want))
		}
	})
}
