package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/services"
	"github.com/urfave/cli/v3"
)

var (
	ErrMissingFile    = errors.New("a journey definition file is required")
	ErrInvalidJourney = errors.New("journey definition is invalid")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a journey definition (JSON or YAML)",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, command *cli.Command) error {
			out := command.Root().Writer

			journey, err := loadJourney(command.Args().First())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(out, "Journey: %s (%d nodes, start %s)\n", journey.Name, len(journey.Nodes), journey.StartNodeID)

			err = services.ValidateJourney(journey)

			var validationErr *services.ValidationError
			if errors.As(err, &validationErr) {
				for _, problem := range validationErr.Problems {
					_, _ = fmt.Fprintf(out, "  ❌ %s\n", problem)
				}

				return fmt.Errorf("%w: %d problems", ErrInvalidJourney, len(validationErr.Problems))
			}

			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(out, "  ✅ VALID")

			return nil
		},
	}
}

func loadJourney(path string) (*models.Journey, error) {
	if path == "" {
		return nil, ErrMissingFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	journey, err := models.ParseJourneyDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return journey, nil
}
