package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the review screen's bindings.
type keyMap struct {
	Reveal key.Binding
	Again  key.Binding
	Good   key.Binding
	Easy   key.Binding
	Reload key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Reveal: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "Show answer"),
		),
		Again: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Again"),
		),
		Good: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Good"),
		),
		Easy: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Easy"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Reload deck"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
	}
}

// ShortHelp returns key bindings for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Reveal, k.Again, k.Good, k.Easy, k.Reload, k.Quit}
}

// FullHelp returns key bindings for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Reveal, k.Again, k.Good, k.Easy},
		{k.Reload, k.Quit},
	}
}
