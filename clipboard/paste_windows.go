//go:build windows

package clipboard

import "github.com/micmonay/keybd_event"

// Paste sends Ctrl+V.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	return chord(keybd_event.VK_V, false, true, false)
}

func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	return "keyboard event binding OK (Ctrl+V)", nil
}
