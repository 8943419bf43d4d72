package tui

import (
	"github.com/charmbracelet/huh/spinner"
)

// ShowSpinner displays a spinner with title while action runs. Without a
// terminal the action simply runs. The action runs exactly once.
func ShowSpinner(title string, action func()) {
	if !HasTTY {
		action()
		return
	}
	var ran bool
	run := func() {
		ran = true
		action()
	}
	if err := spinner.New().Title(title).Action(run).Run(); err != nil && !ran {
		action()
	}
}
