package transcriber

import "strings"

// Accumulator merges token batches into display text. Final text only grows;
// pending text is whatever the latest batch left unconfirmed.
type Accumulator struct {
	final   strings.Builder
	pending string
}

// Apply folds one batch in arrival order and returns the new display text.
// An empty batch changes nothing and reports false.
func (a *Accumulator) Apply(tokens []Token) (string, bool) {
	if len(tokens) == 0 {
		return a.Display(), false
	}
	var pending strings.Builder
	for _, t := range tokens {
		if t.IsFinal {
			a.final.WriteString(t.Text)
		} else {
			pending.WriteString(t.Text)
		}
	}
	a.pending = pending.String()
	return a.Display(), true
}

func (a *Accumulator) Final() string   { return a.final.String() }
func (a *Accumulator) Pending() string { return a.pending }
func (a *Accumulator) Display() string { return a.final.String() + a.pending }
