package version

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-ide/pkg/shared"
	"github.com/scan-io-git/scanio-ide/pkg/shared/config"
)

var (
	AppConfig     *config.Config
	CoreVersion   = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"

	jsonOutput bool
)

// BuildInfo holds version information and the settings the binary runs with.
type BuildInfo struct {
	Versions shared.Versions `json:"versions"`
	Category string          `json:"category"`
	Storage  string          `json:"storage"`
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewVersionCmd creates a new cobra.Command for the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "version",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the version number of the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersionInfo(cmd.OutOrStdout(), currentBuildInfo(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print version information as JSON")
	return cmd
}

func currentBuildInfo() BuildInfo {
	info := BuildInfo{
		Versions: shared.Versions{
			Version:       CoreVersion,
			GolangVersion: GolangVersion,
			BuildTime:     BuildTime,
		},
	}
	cfg := AppConfig
	if cfg == nil {
		cfg = config.Default()
	}
	info.Category = cfg.Engine.Category
	info.Storage = cfg.Storage.Path
	if cfg.Storage.InMemory {
		info.Storage = "in-memory"
	}
	return info
}

// printVersionInfo prints the version information of the application.
func printVersionInfo(w io.Writer, info BuildInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "Core Version: v%s\n", info.Versions.Version)
	fmt.Fprintf(w, "Go Version: %s\n", info.Versions.GolangVersion)
	fmt.Fprintf(w, "Build Time: %s\n", info.Versions.BuildTime)
	fmt.Fprintf(w, "Category: %s\n", info.Category)
	fmt.Fprintf(w, "State: %s\n", info.Storage)
	return nil
}
