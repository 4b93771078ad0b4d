package reconcile

import (
	"fmt"
	"os"
	"strings"

	"github.com/scan-io-git/scanio-ide/pkg/shared/files"
)

// validate validates the RunOptions for the reconcile command.
func validate(o *RunOptions) error {
	if strings.TrimSpace(o.SarifPath) == "" {
		return fmt.Errorf("--sarif is required")
	}
	if err := files.ValidatePath(o.SarifPath); err != nil {
		return fmt.Errorf("--sarif: %w", err)
	}
	if o.SourceFolder != "" {
		info, err := os.Stat(o.SourceFolder)
		if err != nil {
			return fmt.Errorf("--source-folder: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("--source-folder: %q is not a directory", o.SourceFolder)
		}
	}
	if strings.Contains(o.Project, "\x00") {
		return fmt.Errorf("--project must not contain NUL characters")
	}
	if o.Category != "" && strings.TrimSpace(o.Category) == "" {
		return fmt.Errorf("--category must not be blank")
	}
	return nil
}
