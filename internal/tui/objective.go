package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNoObjective is returned when the prompt is dismissed without an objective.
var ErrNoObjective = errors.New("no objective given")

// AskObjective prompts for an objective on the terminal.
func AskObjective() (string, error) {
	var objective string

	err := huh.NewInput().
		Title("What should be built?").
		Placeholder("Create a REST API for a todo list in Go").
		Value(&objective).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("objective is required")
			}
			return nil
		}).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", ErrNoObjective
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(objective), nil
}
