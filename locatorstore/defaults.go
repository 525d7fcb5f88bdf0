package locatorstore

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/codeloop/supervisor/core"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type yamlCriterion struct {
	Attribute string `yaml:"attribute"`
	Value     string `yaml:"value"`
	Match     string `yaml:"match,omitempty"`
}

type yamlLocator struct {
	Criteria []yamlCriterion   `yaml:"criteria"`
	PathHint [][]yamlCriterion `yaml:"path_hint,omitempty"`
	MaxDepth int               `yaml:"max_depth,omitempty"`
}

type yamlElement struct {
	Default    yamlLocator   `yaml:"default"`
	Heuristics []yamlLocator `yaml:"heuristics"`
}

type yamlTable struct {
	Elements map[string]yamlElement `yaml:"elements"`
}

func matchTypeFromString(s string) core.MatchType {
	switch s {
	case "contains":
		return core.MatchContains
	case "regex":
		return core.MatchRegex
	default:
		return core.MatchExact
	}
}

func criteriaFrom(in []yamlCriterion) []core.Criterion {
	out := make([]core.Criterion, len(in))
	for i, c := range in {
		out[i] = core.Criterion{Attribute: c.Attribute, Value: c.Value, Match: matchTypeFromString(c.Match)}
	}
	return out
}

func locatorFrom(in yamlLocator) core.Locator {
	pathHint := make([][]core.Criterion, len(in.PathHint))
	for i, step := range in.PathHint {
		pathHint[i] = criteriaFrom(step)
	}
	return core.Locator{
		Criteria: criteriaFrom(in.Criteria),
		PathHint: pathHint,
		MaxDepth: in.MaxDepth,
	}
}

// elementKeys maps the YAML document's snake_case element keys to
// core.LogicalElement values.
var elementKeys = map[string]core.LogicalElement{
	"generating_indicator_text":  core.ElementGeneratingIndicatorText,
	"error_message_popup":        core.ElementErrorMessagePopup,
	"connection_error_indicator": core.ElementConnectionErrorIndicator,
	"resume_connection_button":   core.ElementResumeConnectionButton,
	"force_stop_resume_link":     core.ElementForceStopResumeLink,
	"main_input_field":           core.ElementMainInputField,
	"stop_generating_button":     core.ElementStopGeneratingButton,
	"sidebar_activity_area":      core.ElementSidebarActivityArea,
}

// defaultTable is the parsed bundled default Locator per LogicalElement
// (cascade tier 3).
type defaultTable map[core.LogicalElement]core.Locator

// heuristicTable is the parsed ordered heuristic chain per LogicalElement
// (cascade tier 4).
type heuristicTable map[core.LogicalElement][]core.Locator

// loadBundledDefaults parses the embedded defaults.yaml asset. It panics on
// malformed YAML, since the asset is compiled into the binary and a parse
// failure here is a build-time defect, not a runtime condition.
func loadBundledDefaults() (defaultTable, heuristicTable) {
	var doc yamlTable
	if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
		panic(fmt.Sprintf("locatorstore: embedded defaults.yaml is invalid: %v", err))
	}

	defaults := make(defaultTable, len(doc.Elements))
	heuristics := make(heuristicTable, len(doc.Elements))
	for key, el := range doc.Elements {
		element, ok := elementKeys[key]
		if !ok {
			panic(fmt.Sprintf("locatorstore: defaults.yaml names unknown element %q", key))
		}
		defaults[element] = locatorFrom(el.Default)
		chain := make([]core.Locator, len(el.Heuristics))
		for i, h := range el.Heuristics {
			chain[i] = locatorFrom(h)
		}
		heuristics[element] = chain
	}
	return defaults, heuristics
}
