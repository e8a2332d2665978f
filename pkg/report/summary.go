package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pyneda/apifuzz/lib"
)

// OperationSummary is the running tally of one operation.
type OperationSummary struct {
	Operation         string `json:"operation" yaml:"operation"`
	State             string `json:"state" yaml:"state"`
	TestCases         int    `json:"test_cases" yaml:"test_cases"`
	Regressions       int    `json:"regressions" yaml:"regressions"`
	Reproduced        int    `json:"reproduced" yaml:"reproduced"`
	Expected          int    `json:"expected" yaml:"expected"`
	Findings          int    `json:"findings" yaml:"findings"`
	NewFindings       int    `json:"new_findings" yaml:"new_findings"`
	TransportFailures int    `json:"transport_failures" yaml:"transport_failures"`
	GenerationErrors  int    `json:"generation_errors" yaml:"generation_errors"`

	// FailureCategories counts transport failures by cause.
	FailureCategories map[string]int `json:"failure_categories,omitempty" yaml:"failure_categories,omitempty"`
}

// RecordTransportFailure counts one test case that got no response.
func (o *OperationSummary) RecordTransportFailure(category string) {
	o.TransportFailures++
	if o.FailureCategories == nil {
		o.FailureCategories = make(map[string]int)
	}
	o.FailureCategories[category]++
}

// MainFailureCategory is the most frequent transport failure cause, ties
// broken by name. Empty when nothing failed.
func (o OperationSummary) MainFailureCategory() string {
	top, count := "", 0
	for category, n := range o.FailureCategories {
		if n > count || (n == count && category < top) {
			top, count = category, n
		}
	}
	return top
}

func (o OperationSummary) String() string {
	return fmt.Sprintf("%s [%s] test cases: %d, findings: %d", o.Operation, o.State, o.TestCases, o.Findings)
}

func (o OperationSummary) Pretty() string {
	findings := lib.Colorize(fmt.Sprintf("%d (new: %d)", o.Findings, o.NewFindings), lib.CountColor(o.NewFindings > 0, o.Findings > 0))
	return fmt.Sprintf(
		"%s\n  State: %s\n  Test cases: %d (regressions replayed: %d, reproduced: %d)\n  Expected: %d\n  Findings: %s\n  Transport failures: %s\n  Generation errors: %d\n",
		lib.Colorize(o.Operation, lib.Blue), o.State, o.TestCases, o.Regressions, o.Reproduced,
		o.Expected, findings, o.transportFailures(), o.GenerationErrors,
	)
}

func (o OperationSummary) transportFailures() string {
	if o.TransportFailures == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (mostly %s)", o.TransportFailures, o.MainFailureCategory())
}

func (o OperationSummary) TableHeaders() []string {
	return []string{"Operation", "State", "Test cases", "Regressions", "Expected", "Findings", "New", "Transport failures", "Generation errors"}
}

func (o OperationSummary) TableRow() []string {
	return []string{
		o.Operation,
		o.State,
		strconv.Itoa(o.TestCases),
		fmt.Sprintf("%d/%d", o.Reproduced, o.Regressions),
		strconv.Itoa(o.Expected),
		strconv.Itoa(o.Findings),
		strconv.Itoa(o.NewFindings),
		o.transportFailures(),
		strconv.Itoa(o.GenerationErrors),
	}
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID         string             `json:"run_id" yaml:"run_id"`
	BaseURL       string             `json:"base_url" yaml:"base_url"`
	OutputDir     string             `json:"output_dir" yaml:"output_dir"`
	CorpusEntries int                `json:"corpus_entries" yaml:"corpus_entries"`
	Stopped       bool               `json:"stopped" yaml:"stopped"`
	StartedAt     time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time          `json:"finished_at" yaml:"finished_at"`
	Operations    []OperationSummary `json:"operations" yaml:"operations"`
	Timings       []TimingStats      `json:"timings,omitempty" yaml:"timings,omitempty"`
}

// TotalFindings counts every unexpected response observed during the run.
func (s *Summary) TotalFindings() int {
	total := 0
	for _, o := range s.Operations {
		total += o.Findings
	}
	return total
}

// NewFindings counts finding files written during the run.
func (s *Summary) NewFindings() int {
	total := 0
	for _, o := range s.Operations {
		total += o.NewFindings
	}
	return total
}

func (s *Summary) TotalTestCases() int {
	total := 0
	for _, o := range s.Operations {
		total += o.TestCases
	}
	return total
}

// Render formats the per-operation rows in the requested format.
func (s *Summary) Render(format lib.FormatType) (string, error) {
	return lib.FormatOutput(s.Operations, format)
}
