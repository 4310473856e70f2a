//go:build darwin

package clipboard

import "github.com/micmonay/keybd_event"

// Paste sends Cmd+V.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	return chord(keybd_event.VK_V, false, false, true)
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	return "keyboard event binding OK (Cmd+V)", nil
}
