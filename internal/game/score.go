package game

import "fmt"

type Outcome uint8

const (
	Absent Outcome = iota
	Present
	Correct
)

func (o Outcome) String() string {
	switch o {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Correct:
		return "correct"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	if o > Correct {
		return nil, fmt.Errorf("invalid outcome %d", uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	v, ok := ParseOutcome(string(b))
	if !ok {
		return fmt.Errorf("invalid outcome %q", b)
	}
	*o = v
	return nil
}

// ParseOutcome accepts a name ("correct") or a digit ("2").
func ParseOutcome(s string) (Outcome, bool) {
	switch s {
	case "absent", "0":
		return Absent, true
	case "present", "1":
		return Present, true
	case "correct", "2":
		return Correct, true
	}
	return 0, false
}

type Results [WordLength]Outcome

// Score compares guess to secret position by position. A letter that is not in
// the right spot counts as Present if it occurs anywhere in the secret; repeated
// letters are not consumed. The guess-result circuit encodes the same rule.
func Score(guess, secret Word) Results {
	var r Results
	for i := 0; i < WordLength; i++ {
		if guess[i] == secret[i] {
			r[i] = Correct
			continue
		}
		for j := 0; j < WordLength; j++ {
			if guess[i] == secret[j] {
				r[i] = Present
				break
			}
		}
	}
	return r
}

func (r Results) AllCorrect() bool {
	for _, o := range r {
		if o != Correct {
			return false
		}
	}
	return true
}

func (r Results) Slice() []Outcome {
	out := make([]Outcome, WordLength)
	copy(out, r[:])
	return out
}

// ResultsFromSlice validates a decoded result vector.
func ResultsFromSlice(s []Outcome) (Results, bool) {
	var r Results
	if len(s) != WordLength {
		return r, false
	}
	for i, o := range s {
		if o > Correct {
			return r, false
		}
		r[i] = o
	}
	return r, true
}

func AllCorrect(s []Outcome) bool {
	r, ok := ResultsFromSlice(s)
	return ok && r.AllCorrect()
}
