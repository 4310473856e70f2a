package clipboard

import (
	"sync"
	"time"

	"voxkey/log"
)

const (
	DefaultSettle       = 35 * time.Millisecond
	DefaultPasteWait    = 120 * time.Millisecond
	DefaultRestoreAfter = 1200 * time.Millisecond
)

// Injector pastes text at the cursor. The previous clipboard text is put back
// in the background once the target application has consumed the paste. When
// the clipboard or the paste keystroke is unavailable the text is typed.
type Injector struct {
	Settle       time.Duration // between writing the clipboard and pasting
	PasteWait    time.Duration // after the paste keystroke
	RestoreAfter time.Duration

	read  func() (string, error)
	write func(string) error
	paste func() error
	typ   func(string) error

	wg sync.WaitGroup
}

// NewInjector returns an Injector bound to the system clipboard and keyboard.
func NewInjector() *Injector {
	return &Injector{
		Settle:       DefaultSettle,
		PasteWait:    DefaultPasteWait,
		RestoreAfter: DefaultRestoreAfter,
		read:         Read,
		write:        Copy,
		paste:        Paste,
		typ:          Type,
	}
}

func (i *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}
	prev, readErr := i.read()
	if readErr != nil {
		log.Warnf("clipboard read failed, previous text will not be restored: %v", readErr)
	}

	err := i.pasteText(text)
	if readErr == nil {
		i.restoreLater(prev, text)
	}
	if err == nil {
		log.Infof("inject_paste chars=%d", len(text))
		return nil
	}

	log.Warnf("paste failed, typing instead: %v", err)
	if err := i.typ(text); err != nil {
		return err
	}
	log.Infof("inject_type chars=%d", len(text))
	return nil
}

func (i *Injector) pasteText(text string) error {
	if err := i.write(text); err != nil {
		return err
	}
	time.Sleep(i.Settle)
	if err := i.paste(); err != nil {
		return err
	}
	time.Sleep(i.PasteWait)
	return nil
}

// restoreLater puts prev back unless the clipboard changed in the meantime.
func (i *Injector) restoreLater(prev, injected string) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		time.Sleep(i.RestoreAfter)
		cur, err := i.read()
		if err != nil || cur != injected {
			return
		}
		if err := i.write(prev); err != nil {
			log.Warnf("clipboard restore failed: %v", err)
		}
	}()
}

// Wait blocks until pending clipboard restores have run.
func (i *Injector) Wait() {
	i.wg.Wait()
}
