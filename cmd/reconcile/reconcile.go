package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-ide/internal/engine"
	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/internal/markers"
	"github.com/scan-io-git/scanio-ide/internal/registry"
	internalsarif "github.com/scan-io-git/scanio-ide/internal/sarif"
	"github.com/scan-io-git/scanio-ide/internal/storage/badgerstore"
	"github.com/scan-io-git/scanio-ide/internal/workspace"
	"github.com/scan-io-git/scanio-ide/pkg/shared"
	"github.com/scan-io-git/scanio-ide/pkg/shared/config"
	"github.com/scan-io-git/scanio-ide/pkg/shared/errors"
	"github.com/scan-io-git/scanio-ide/pkg/shared/files"
	"github.com/scan-io-git/scanio-ide/pkg/shared/logger"
)

// RunOptions holds flags for the reconcile command.
type RunOptions struct {
	SarifPath    string `json:"sarif_path,omitempty"`
	SourceFolder string `json:"source_folder,omitempty"`
	Project      string `json:"project,omitempty"`
	Category     string `json:"category,omitempty"`
	StateDir     string `json:"state_dir,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
}

// Output is what the command prints: the annotation records now in place and what could
// not be processed.
type Output struct {
	Project       string            `json:"project"`
	Category      string            `json:"category"`
	Records       []findings.Record `json:"records"`
	Failed        map[string]string `json:"failed,omitempty"`
	Skipped       []string          `json:"skipped,omitempty"`
	Created       int               `json:"created"`
	Updated       int               `json:"updated"`
	Deleted       int               `json:"deleted"`
	Notifications uint64            `json:"notifications"`
}

var (
	AppConfig *config.Config
	opts      RunOptions

	exampleReconcileUsage = `  # Reconcile a report against the sources it was produced from
  scanio-ide reconcile --sarif /path/to/report.sarif --source-folder /path/to/project

  # Keep the tracked state next to the project and write the records to a file
  scanio-ide reconcile --sarif report.sarif --source-folder . --state-dir .scanio-ide --output annotations.json

  # Track results of a different analysis under their own category
  scanio-ide reconcile --sarif report.sarif --source-folder . --category scanio.report`

	// ReconcileCmd represents the command reconciling a SARIF report with the tracked state.
	ReconcileCmd = &cobra.Command{
		Use:                   "reconcile --sarif PATH [--source-folder PATH] [--project NAME] [--category ID] [--state-dir PATH] [--output PATH]",
		Short:                 "Reconcile analysis results with the annotations tracked so far",
		Example:               exampleReconcileUsage,
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		RunE:                  runReconcile,
	}
)

// Init wires config into this command.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !shared.HasFlags(cmd.Flags()) {
		return cmd.Help()
	}

	cfg := AppConfig
	if cfg == nil {
		cfg = config.Default()
	}
	lg := logger.NewLoggerWithOutput(cfg, "reconcile", os.Stderr)

	if err := validate(&opts); err != nil {
		lg.Error("invalid arguments", "error", err)
		return errors.NewCommandError(opts, nil, fmt.Errorf("invalid arguments: %w", err), 1)
	}

	out, err := Run(cmd.Context(), cfg, opts, lg)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.NewCommandError(opts, nil, fmt.Errorf("failed to encode output: %w", err), 2)
	}
	if opts.OutputPath != "" {
		if err := files.WriteJsonFile(opts.OutputPath, data); err != nil {
			lg.Error("failed to write output", "path", opts.OutputPath, "error", err)
			return errors.NewCommandError(opts, out, fmt.Errorf("failed to write output: %w", err), 2)
		}
		lg.Info("records written", "path", opts.OutputPath, "count", len(out.Records))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	if len(out.Failed) > 0 {
		return errors.NewCommandError(opts, out, fmt.Errorf("%d file(s) could not be reconciled", len(out.Failed)), 2)
	}
	return nil
}

// Run reads the report of o.SarifPath, reconciles it with the tracked state of the project
// and returns the resulting records. Processing failures are returned as command errors
// with exit code 2.
func Run(ctx context.Context, cfg *config.Config, o RunOptions, lg hclog.Logger) (*Output, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if lg == nil {
		lg = hclog.NewNullLogger()
	}
	fail := func(msg string, err error) (*Output, error) {
		lg.Error(msg, "error", err)
		return nil, errors.NewCommandError(o, nil, fmt.Errorf("%s: %w", msg, err), 2)
	}

	sourceFolder, err := resolveSourceFolder(o.SourceFolder)
	if err != nil {
		return fail("failed to resolve source folder", err)
	}
	project := o.Project
	if project == "" {
		project = filepath.Base(sourceFolder)
	}
	category := o.Category
	if category == "" {
		category = cfg.Engine.Category
	}

	report, err := internalsarif.ReadReport(o.SarifPath, lg, true)
	if err != nil {
		return fail("failed to read SARIF report", err)
	}
	if meta, err := report.ExtractToolNameAndVersion(); err == nil {
		lg.Debug("report loaded", "tool", meta.Name)
	}
	grouped, skipped := report.Findings(workspace.NewAdapterChain(sourceFolder))
	for _, err := range skipped {
		lg.Warn("result skipped", "error", err)
	}

	backend, err := openBackend(cfg, o.StateDir, lg)
	if err != nil {
		return fail("failed to open tracked state", err)
	}
	reg := registry.New(backend, lg)
	defer func() {
		if err := reg.Close(); err != nil {
			lg.Warn("failed to close tracked state", "error", err)
		}
	}()
	reg.OpenProject(project)

	tracked, err := reg.Resources(ctx, project)
	if err != nil {
		return fail("failed to list tracked resources", err)
	}

	// the host starts with the annotations of the previous run
	host := workspace.NewMemoryStore()
	for _, res := range tracked {
		host.AddResource(workspace.Resource(res))
	}
	for res := range grouped {
		host.AddResource(res)
	}
	applier := markers.NewApplier(host, lg)
	eng := engine.New(reg, applier, engine.FileSource{Root: sourceFolder},
		engine.WithJobs(cfg.Engine.Jobs),
		engine.WithLogger(lg))
	if _, err := eng.Restore(ctx, project, category); err != nil {
		return fail("failed to restore tracked annotations", err)
	}
	restored := host.Notifications()

	reqs := requests(grouped, tracked)
	result, err := eng.Run(ctx, project, category, reqs)
	if err != nil {
		return fail("reconcile failed", err)
	}

	return buildOutput(project, category, result, host.Notifications()-restored, lg), nil
}

// requests builds one request per reported resource, plus an empty one for every tracked
// resource the report no longer mentions so that its annotations are dropped.
func requests(grouped map[workspace.Resource][]findings.Finding, tracked []string) []engine.Request {
	var reqs []engine.Request
	for _, res := range internalsarif.Resources(grouped) {
		reqs = append(reqs, engine.Request{Resource: res, Findings: grouped[res]})
	}
	for _, name := range tracked {
		res := workspace.Resource(name)
		if _, ok := grouped[res]; !ok {
			reqs = append(reqs, engine.Request{Resource: res})
		}
	}
	return reqs
}

func buildOutput(project, category string, result engine.Report, notifications uint64, lg hclog.Logger) *Output {
	out := &Output{
		Project:       project,
		Category:      category,
		Records:       []findings.Record{},
		Created:       result.Applied.Created,
		Updated:       result.Applied.Updated,
		Deleted:       result.Applied.Deleted,
		Notifications: notifications,
	}

	resources := make([]workspace.Resource, 0, len(result.Annotations))
	for res := range result.Annotations {
		resources = append(resources, res)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i] < resources[j] })
	for _, res := range resources {
		for _, ann := range result.Annotations[res] {
			rec, err := findings.ToRecord(category, ann)
			if err != nil {
				lg.Warn("record attributes omitted", "resource", res, "id", ann.ID, "error", err)
			}
			out.Records = append(out.Records, rec)
		}
	}

	for res, err := range result.Failed {
		if out.Failed == nil {
			out.Failed = make(map[string]string)
		}
		out.Failed[string(res)] = err.Error()
	}
	for res, err := range result.Applied.Failed {
		if out.Failed == nil {
			out.Failed = make(map[string]string)
		}
		out.Failed[string(res)] = err.Error()
	}
	for _, res := range result.Skipped {
		out.Skipped = append(out.Skipped, string(res))
	}
	return out
}

func resolveSourceFolder(folder string) (string, error) {
	if folder == "" {
		folder = "."
	}
	expanded, err := files.ExpandPath(folder)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// openBackend opens the tracked-state store. stateDir overrides the configured path.
func openBackend(cfg *config.Config, stateDir string, lg hclog.Logger) (registry.Backend, error) {
	bc := badgerstore.Config{
		Path:       cfg.Storage.Path,
		InMemory:   cfg.Storage.InMemory,
		SyncWrites: cfg.Storage.SyncWritesOr(true),
		Logger:     lg,
	}
	if stateDir != "" {
		bc.Path = stateDir
		bc.InMemory = false
	}
	if !bc.InMemory {
		expanded, err := files.ExpandPath(bc.Path)
		if err != nil {
			return nil, err
		}
		bc.Path = expanded
	}
	return badgerstore.Open(bc)
}

func init() {
	ReconcileCmd.Flags().StringVar(&opts.SarifPath, "sarif", "", "Path to SARIF report")
	ReconcileCmd.Flags().StringVar(&opts.SourceFolder, "source-folder", "", "Optional: root of the analysed sources (defaults to the current directory)")
	ReconcileCmd.Flags().StringVar(&opts.Project, "project", "", "Optional: project name scoping the tracked state (defaults to the source folder name)")
	ReconcileCmd.Flags().StringVar(&opts.Category, "category", "", "Optional: annotation category (defaults to engine.category of the config)")
	ReconcileCmd.Flags().StringVar(&opts.StateDir, "state-dir", "", "Optional: directory of the tracked state (defaults to storage.path of the config)")
	ReconcileCmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Optional: file to write the resulting records to (defaults to stdout)")
}
