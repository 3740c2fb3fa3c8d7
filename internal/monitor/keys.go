package monitor

import (
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Action is a single key binding.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Hint    string
	Handler func()
}

// Matches reports whether ev triggers a.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Keymap keeps bindings in registration order so hints render stably.
type Keymap struct {
	actions []*Action
}

func (k *Keymap) Add(a *Action) {
	k.actions = append(k.actions, a)
}

// Handle runs the first matching action and reports whether one matched.
func (k *Keymap) Handle(ev *tcell.EventKey) bool {
	for _, a := range k.actions {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}

// Hints renders the bindings with a hint as "k:hint" pairs.
func (k *Keymap) Hints() string {
	var parts []string
	for _, a := range k.actions {
		if a.Hint == "" {
			continue
		}
		key := string(a.Rune)
		if a.Key != tcell.KeyRune {
			key = tcell.KeyNames[a.Key]
		}
		parts = append(parts, key+":"+a.Hint)
	}
	return strings.Join(parts, " ")
}
