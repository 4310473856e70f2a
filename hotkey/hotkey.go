package hotkey

// Hotkey delivers raw press and release edges of the global shortcut.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Label is the human-readable shortcut.
const Label = "Alt+Shift+O"
