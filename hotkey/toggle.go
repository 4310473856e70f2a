package hotkey

import (
	"sync"
	"time"

	"voxkey/log"
)

const DefaultDebounce = 500 * time.Millisecond

// Toggle turns raw edges into toggle presses. A press while the shortcut is
// still held is auto-repeat and ignored; so is a press within the debounce
// window of the last accepted one.
type Toggle struct {
	presses  chan struct{}
	debounce time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

func NewToggle(hk Hotkey, debounce time.Duration) *Toggle {
	t := &Toggle{
		presses:  make(chan struct{}, 1),
		debounce: debounce,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go t.run(hk)
	return t
}

// Presses yields one value per accepted press.
func (t *Toggle) Presses() <-chan struct{} { return t.presses }

func (t *Toggle) Close() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Toggle) run(hk Hotkey) {
	var (
		held bool
		last time.Time
	)
	for {
		select {
		case <-t.stop:
			return
		case <-hk.Keyup():
			held = false
		case <-hk.Keydown():
			if held {
				log.Info("hotkey_ignored held")
				continue
			}
			held = true
			now := t.now()
			if !last.IsZero() && now.Sub(last) < t.debounce {
				log.Info("hotkey_ignored debounce")
				continue
			}
			last = now
			select {
			case t.presses <- struct{}{}:
			default:
			}
		}
	}
}
