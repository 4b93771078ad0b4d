package sarif

import (
	"fmt"
	"sort"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/internal/workspace"
	"github.com/scan-io-git/scanio-ide/pkg/flowcodec"
)

// Partial fingerprints used as server key, by priority.
var serverKeyFingerprints = []string{"scanioServerKey", "primaryLocationLineHash"}

// artifact is the input file a flow step was reported against.
type artifact struct {
	resource workspace.Resource
}

func (a artifact) Path() string { return string(a.resource) }

// Findings converts every result of the report into a finding and groups them by resource.
// Results whose primary location cannot be adapted are skipped and reported in the
// returned errors.
func (r Report) Findings(chain workspace.AdapterChain) (map[workspace.Resource][]findings.Finding, []error) {
	out := make(map[workspace.Resource][]findings.Finding)
	var errs []error

	for runIdx, run := range r.Runs {
		if run == nil {
			continue
		}
		rules := rulesByID(run)
		for resIdx, result := range run.Results {
			if result == nil {
				continue
			}
			if len(result.Locations) == 0 {
				errs = append(errs, fmt.Errorf("run %d result %d: no location", runIdx, resIdx))
				continue
			}
			res, err := chain.Adapt(result.Locations[0])
			if err != nil {
				errs = append(errs, fmt.Errorf("run %d result %d: %w", runIdx, resIdx, err))
				continue
			}

			f := r.convertResult(result, rules, res, chain)
			out[res] = append(out[res], f)
		}
	}

	total := 0
	for _, fs := range out {
		total += len(fs)
	}
	r.logger.Debug("converted sarif results", "findings", total, "resources", len(out), "skipped", len(errs))
	return out, errs
}

func (r Report) convertResult(result *sarif.Result, rules map[string]*sarif.ReportingDescriptor, res workspace.Resource, chain workspace.AdapterChain) findings.Finding {
	ruleID := ""
	if result.RuleID != nil {
		ruleID = *result.RuleID
	}
	rule := rules[ruleID]

	f := findings.Finding{
		RuleID:             ruleID,
		Severity:           resultLevel(result, rule),
		ServerKey:          serverKey(result),
		Impacts:            impacts(result.Properties),
		CleanCodeAttribute: getStringProp(result.Properties, "cleanCodeAttribute"),
	}
	if result.Message.Text != nil {
		f.Message = *result.Message.Text
	}
	if pl := result.Locations[0].PhysicalLocation; pl != nil {
		f.Location = textLocation(pl.Region)
	}
	f.Flows = r.codeFlows(result, res, chain)
	return f
}

func serverKey(result *sarif.Result) string {
	for _, name := range serverKeyFingerprints {
		v, ok := result.PartialFingerprints[name]
		if !ok {
			continue
		}
		if s, ok := interface{}(v).(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// textLocation maps a SARIF region to a text location. SARIF columns are 1-based.
func textLocation(region *sarif.Region) *findings.TextLocation {
	if region == nil || region.StartLine == nil || *region.StartLine < 1 {
		return nil
	}
	loc := &findings.TextLocation{
		StartLine:   *region.StartLine,
		StartOffset: columnOffset(region.StartColumn),
		EndLine:     region.EndLine,
		EndOffset:   columnOffset(region.EndColumn),
	}
	return loc
}

func columnOffset(column *int) *int {
	if column == nil || *column < 1 {
		return nil
	}
	offset := *column - 1
	return &offset
}

// codeFlows turns each thread flow into one code flow. Identical thread flows are kept once.
func (r Report) codeFlows(result *sarif.Result, res workspace.Resource, chain workspace.AdapterChain) []findings.CodeFlow {
	var flows []findings.CodeFlow
	seen := map[string]bool{}

	for _, codeFlow := range result.CodeFlows {
		if codeFlow == nil {
			continue
		}
		for _, threadFlow := range codeFlow.ThreadFlows {
			if threadFlow == nil {
				continue
			}
			var steps []findings.CodeFlowStep
			for _, tfl := range threadFlow.Locations {
				if step, ok := r.flowStep(tfl, res, chain); ok {
					steps = append(steps, step)
				}
			}
			if len(steps) == 0 {
				continue
			}
			flow := findings.CodeFlow{Steps: steps}
			fingerprint := flowcodec.Encode([]findings.CodeFlow{flow})
			if seen[fingerprint] {
				continue
			}
			seen[fingerprint] = true
			flows = append(flows, flow)
		}
	}
	return flows
}

func (r Report) flowStep(tfl *sarif.ThreadFlowLocation, res workspace.Resource, chain workspace.AdapterChain) (findings.CodeFlowStep, bool) {
	if tfl == nil || tfl.Location == nil || tfl.Location.PhysicalLocation == nil {
		return findings.CodeFlowStep{}, false
	}
	loc := textLocation(tfl.Location.PhysicalLocation.Region)
	if loc == nil {
		return findings.CodeFlowStep{}, false
	}

	stepRes := res
	if tfl.Location.PhysicalLocation.ArtifactLocation != nil {
		adapted, err := chain.Adapt(tfl.Location.PhysicalLocation)
		if err != nil {
			r.logger.Trace("flow step kept on the result's resource", "resource", res, "error", err)
		} else {
			stepRes = adapted
		}
	}

	message := ""
	if tfl.Location.Message != nil && tfl.Location.Message.Text != nil {
		message = *tfl.Location.Message.Text
	}
	endLine := loc.StartLine
	if loc.EndLine != nil {
		endLine = *loc.EndLine
	}
	return findings.NewCodeFlowStep(artifact{resource: stepRes}, message,
		loc.StartLine, valueOr(loc.StartOffset, 0), endLine, valueOr(loc.EndOffset, 0)), true
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// impacts reads the "impacts" result property. Both a quality to severity object and a
// list of {softwareQuality, severity} objects are accepted.
func impacts(props map[string]interface{}) map[string]string {
	raw, ok := props["impacts"]
	if !ok {
		return nil
	}
	out := map[string]string{}
	switch v := raw.(type) {
	case map[string]interface{}:
		for quality, severity := range v {
			if s, ok := severity.(string); ok {
				out[quality] = s
			}
		}
	case []interface{}:
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			quality := getStringProp(m, "softwareQuality")
			if quality == "" {
				continue
			}
			out[quality] = getStringProp(m, "severity")
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Resources returns the resources of a grouped finding set in sorted order.
func Resources(grouped map[workspace.Resource][]findings.Finding) []workspace.Resource {
	out := make([]workspace.Resource, 0, len(grouped))
	for res := range grouped {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
