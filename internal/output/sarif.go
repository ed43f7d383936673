package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// SARIF 2.1.0, the format code scanning dashboards ingest.
// Spec: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

type SARIFReport struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []SARIFRun `json:"runs"`
}

type SARIFRun struct {
	Tool    SARIFTool     `json:"tool"`
	Results []SARIFResult `json:"results"`
}

type SARIFTool struct {
	Driver SARIFDriver `json:"driver"`
}

type SARIFDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []SARIFRule `json:"rules"`
}

type SARIFRule struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ShortDescription SARIFText `json:"shortDescription"`
}

type SARIFResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   SARIFMessage    `json:"message"`
	Locations []SARIFLocation `json:"locations,omitempty"`
	Kind      string          `json:"kind,omitempty"`
}

type SARIFMessage struct {
	Text string `json:"text"`
}

type SARIFText struct {
	Text string `json:"text"`
}

type SARIFLocation struct {
	PhysicalLocation *SARIFPhysicalLocation `json:"physicalLocation,omitempty"`
	LogicalLocations []SARIFLogicalLocation `json:"logicalLocations,omitempty"`
}

type SARIFPhysicalLocation struct {
	ArtifactLocation SARIFArtifactLocation `json:"artifactLocation"`
}

type SARIFArtifactLocation struct {
	URI string `json:"uri"`
}

type SARIFLogicalLocation struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// ConvertToSARIF builds one run holding every finding. Rules are the codes
// that occur, sorted by id.
func ConvertToSARIF(findings []Finding, version string) *SARIFReport {
	seen := map[Code]bool{}
	results := make([]SARIFResult, 0, len(findings))
	for _, f := range findings {
		seen[f.Code] = true
		results = append(results, SARIFResult{
			RuleID:    string(f.Code),
			Level:     mapSeverityToSARIFLevel(f.Severity),
			Message:   SARIFMessage{Text: fmt.Sprintf("%s: %s", f.Host, f.Msg)},
			Locations: []SARIFLocation{findingLocation(f)},
			Kind:      "fail",
		})
	}

	rules := make([]SARIFRule, 0, len(seen))
	for code := range seen {
		rules = append(rules, SARIFRule{
			ID:               string(code),
			Name:             string(code),
			ShortDescription: SARIFText{Text: code.Description()},
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	return &SARIFReport{
		Version: "2.1.0",
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Runs: []SARIFRun{{
			Tool: SARIFTool{Driver: SARIFDriver{
				Name:           "blueteam",
				Version:        version,
				InformationURI: "https://github.com/girste/blueteam",
				Rules:          rules,
			}},
			Results: results,
		}},
	}
}

func mapSeverityToSARIFLevel(severity string) string {
	switch severity {
	case SeverityCritical, SeverityHigh:
		return "error"
	case SeverityMedium:
		return "warning"
	case SeverityLow, SeverityInfo:
		return "note"
	default:
		return "warning"
	}
}

// findingLocation points at the file when there is one, and always names the
// host the finding came from.
func findingLocation(f Finding) SARIFLocation {
	loc := SARIFLocation{
		LogicalLocations: []SARIFLogicalLocation{{Name: f.Host, Kind: "resource"}},
	}
	if strings.HasPrefix(f.Path, "/") {
		loc.PhysicalLocation = &SARIFPhysicalLocation{
			ArtifactLocation: SARIFArtifactLocation{URI: "file://" + strings.TrimSuffix(f.Path, " (deleted)")},
		}
	}
	return loc
}

// Write encodes the report as indented JSON.
func (s *SARIFReport) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
