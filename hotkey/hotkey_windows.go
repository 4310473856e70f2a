package hotkey

import "golang.design/x/hotkey"

var comboModifiers = []hotkey.Modifier{hotkey.ModAlt, hotkey.ModShift}
