// Package clipboard delivers text to the focused application, either by
// pasting through the system clipboard or by typing it key by key.
package clipboard

import cb "github.com/atotto/clipboard"

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}
