package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	triggerSeparator      = ";"
	pipelineSeparator     = ":"
	pipelineListSeparator = ","
)

// TriggerSpec binds pipelines to a cron schedule.
type TriggerSpec struct {
	Pipelines []string
	CronSpec  string
}

// ParseTriggerSpecs parses a multi-trigger specification string.
// The format is: pipeline1,pipeline2:cron_expression;pipeline3:cron_expression2
//
// Example:
//
//	"nightly,cleanup:0 2 * * *;report:0 3 * * *"
//
// Returns an error if:
//   - Any trigger is missing pipelines or a cron expression
//   - Any pipeline name is not in available
//   - Any cron expression is invalid
//   - Any trigger lists a pipeline twice
func ParseTriggerSpecs(spec string, available []string) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("schedule spec cannot be empty")
	}

	var specs []TriggerSpec
	for _, triggerStr := range strings.Split(spec, triggerSeparator) {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue
		}
		ts, err := parseSingleTrigger(triggerStr, available)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in schedule spec")
	}
	return specs, nil
}

func parseSingleTrigger(triggerStr string, available []string) (TriggerSpec, error) {
	pipelinesStr, cronSpec, ok := strings.Cut(triggerStr, pipelineSeparator)
	if !ok || strings.Contains(cronSpec, pipelineSeparator) {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'pipelines:cron', got '%s'", triggerStr)
	}
	pipelinesStr = strings.TrimSpace(pipelinesStr)
	cronSpec = strings.TrimSpace(cronSpec)

	if pipelinesStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing pipelines in '%s'", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	var pipelines []string
	for _, p := range strings.Split(pipelinesStr, pipelineListSeparator) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if slices.Contains(pipelines, p) {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: duplicate pipeline '%s' in '%s'", p, triggerStr)
		}
		if !slices.Contains(available, p) {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown pipeline '%s' in '%s' (available: %s)",
				p, triggerStr, strings.Join(available, ", "))
		}
		pipelines = append(pipelines, p)
	}
	if len(pipelines) == 0 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid pipelines in '%s'", triggerStr)
	}

	if _, err := ParseSpec(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", triggerStr, err)
	}

	return TriggerSpec{Pipelines: pipelines, CronSpec: cronSpec}, nil
}
