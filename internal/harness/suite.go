package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Path   string  `json:"path"`
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"` // load or harness failure
}

// Passed reports whether the scenario loaded, ran and held.
func (o ScenarioOutcome) Passed() bool {
	return o.Error == "" && o.Result != nil && o.Result.Pass
}

// SuiteResult aggregates a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Outcomes []ScenarioOutcome `json:"outcomes"`
}

// FindScenarioFiles returns the .yaml and .yml files under dir in lexical
// order. A non-empty filter is matched against the file's base name without
// extension using filepath.Match.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			base := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, base)
			if err != nil {
				return fmt.Errorf("invalid filter pattern %q: %w", filter, err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunDir loads and runs every scenario under dir. Scenario failures are
// recorded in the outcome; an error is returned only when dir cannot be
// walked.
func RunDir(ctx context.Context, dir, filter string, opts ...Option) (*SuiteResult, error) {
	files, err := FindScenarioFiles(dir, filter)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{Outcomes: []ScenarioOutcome{}}
	for _, path := range files {
		outcome := runFile(ctx, path, opts...)
		suite.Outcomes = append(suite.Outcomes, outcome)
		suite.Total++
		if outcome.Passed() {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
	return suite, nil
}

func runFile(ctx context.Context, path string, opts ...Option) ScenarioOutcome {
	outcome := ScenarioOutcome{
		Path: path,
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	scenario, err := LoadScenario(path)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Name = scenario.Name

	result, err := Run(ctx, scenario, opts...)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Result = result
	return outcome
}
