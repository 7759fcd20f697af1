package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Rename key.Binding
	Star   key.Binding
	Save   key.Binding
	Login  key.Binding
	Logout key.Binding
	Quit   key.Binding
	Submit key.Binding
	Cancel key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Rename: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "rename")),
		Star:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "star")),
		Save:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save now")),
		Login:  key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "sign in")),
		Logout: key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "sign out")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+q", "ctrl+c"), key.WithHelp("ctrl+q", "quit")),
		Submit: key.NewBinding(key.WithKeys("enter")),
		Cancel: key.NewBinding(key.WithKeys("esc")),
	}
}

func helpLine(bindings ...key.Binding) string {
	out := ""
	for i, b := range bindings {
		if i > 0 {
			out += "  "
		}
		h := b.Help()
		out += h.Key + " " + h.Desc
	}
	return out
}
