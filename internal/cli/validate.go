package cli

import (
	"fmt"

	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/validation"
)

type ValidateCmd struct{}

func (cmd *ValidateCmd) Run(ctx *Context) error {
	settings, err := storage.GetSettings(ctx.Store)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}

	fmt.Println("Validating settings...")
	result := validation.ValidateSettings(settings)

	fmt.Println("Validating habit state...")
	result.Issues = append(result.Issues, validation.ValidateState(st.Snapshot()).Issues...)

	fmt.Println()
	fmt.Println(result.FormatReport())

	if result.HasErrors() {
		return fmt.Errorf("validation found problems")
	}
	return nil
}
