package sarif

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/scanio-ide/pkg/shared/files"
)

// Default severity of a result whose level is set neither on the result nor on its rule.
const defaultLevel = "warning"

type Report struct {
	*sarif.Report
	logger hclog.Logger
}

type ToolMetadata struct {
	Name    string
	Version *string
}

func readSarifReport(inputPath string) (*sarif.Report, error) {
	jsonFile, err := os.Open(inputPath)
	if err != nil {
		return nil, err
	}
	defer jsonFile.Close()

	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read sarif report: %w", err)
	}

	var sarifReport sarif.Report
	if err := json.Unmarshal(byteValue, &sarifReport); err != nil {
		return nil, fmt.Errorf("failed to parse sarif report: %w", err)
	}

	return &sarifReport, nil
}

// remove all results with Suppressions property
func removeSuppressedResults(report *sarif.Report) {
	for _, run := range report.Runs {
		var filteredResults []*sarif.Result

		for _, result := range run.Results {
			if len(result.Suppressions) == 0 {
				filteredResults = append(filteredResults, result)
			}
		}

		run.Results = filteredResults
	}
}

// ReadReport loads a SARIF report from inputPath. Suppressed results are dropped when
// noSuppressions is set.
func ReadReport(inputPath string, logger hclog.Logger, noSuppressions bool) (*Report, error) {
	if err := files.ValidatePath(inputPath); err != nil {
		return nil, err
	}

	sarifReport, err := readSarifReport(inputPath)
	if err != nil {
		return nil, err
	}

	if noSuppressions {
		removeSuppressedResults(sarifReport)
	}

	return NewReport(sarifReport, logger), nil
}

// NewReport wraps an already parsed report.
func NewReport(report *sarif.Report, logger hclog.Logger) *Report {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Report{
		Report: report,
		logger: logger.Named("sarif"),
	}
}

// ExtractToolNameAndVersion function extracts tool name and version from a sarif report
func (r Report) ExtractToolNameAndVersion() (*ToolMetadata, error) {
	if len(r.Runs) == 0 || r.Runs[0].Tool.Driver == nil {
		return nil, fmt.Errorf("sarif report has no tool driver")
	}
	toolName := r.Runs[0].Tool.Driver.Name
	toolVersion := r.Runs[0].Tool.Driver.SemanticVersion
	return &ToolMetadata{
		Name:    toolName,
		Version: toolVersion,
	}, nil
}

// rulesByID indexes the rules of a run.
func rulesByID(run *sarif.Run) map[string]*sarif.ReportingDescriptor {
	rulesMap := map[string]*sarif.ReportingDescriptor{}
	if run.Tool.Driver == nil {
		return rulesMap
	}
	for _, rule := range run.Tool.Driver.Rules {
		if rule != nil {
			rulesMap[rule.ID] = rule
		}
	}
	return rulesMap
}

// resultLevel returns the level of a result, falling back to the level of its rule.
func resultLevel(result *sarif.Result, rule *sarif.ReportingDescriptor) string {
	if result.Level != nil && *result.Level != "" {
		// used by snyk
		return *result.Level
	}
	if rule != nil {
		if level := getStringProp(rule.Properties, "problem.severity"); level != "" {
			// used by codeql
			return level
		}
		if rule.DefaultConfiguration != nil && rule.DefaultConfiguration.Level != "" {
			return rule.DefaultConfiguration.Level
		}
	}
	return defaultLevel
}
