// Package tui renders cachectl output for people: styled text, tables,
// prompts and spinners. Everything degrades to plain output when stdout is
// not a terminal.
package tui

import (
	"os"

	"github.com/mattn/go-isatty"
)

var (
	HasTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
)
