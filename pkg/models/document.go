package models

// WorkflowDocument is the canonical shape of a workflow definition file.
type WorkflowDocument struct {
	Version  string       `yaml:"version"  validate:"required"`
	Workflow WorkflowSpec `yaml:"workflow" validate:"required"`
}

// WorkflowSpec lists the jobs of a workflow in declaration order.
type WorkflowSpec struct {
	Name string     `yaml:"name" validate:"required"`
	Jobs []*JobSpec `yaml:"jobs" validate:"required,min=1,dive,required"`
}

// JobSpec is one job entry. Keys that are neither job nor trigger fields are collected in
// Params and handed to the operator.
type JobSpec struct {
	Name     string `yaml:"name"     validate:"required"`
	Operator string `yaml:"operator" validate:"required"`

	TriggerSpec `yaml:",inline"`

	DependsOn             string `yaml:"depends_on"`
	DependencyLogsPattern string `yaml:"dependency_logs_pattern"`
	RunIfPatternMatch     *bool  `yaml:"run_if_pattern_match"`

	Params map[string]any `yaml:",inline"`
}

// RunIfMatch returns the declared run_if_pattern_match, defaulting to true.
func (s *JobSpec) RunIfMatch() bool {
	if s.RunIfPatternMatch == nil {
		return true
	}

	return *s.RunIfPatternMatch
}

// Definition returns the storable payload of the job.
func (s *JobSpec) Definition() JobDefinition {
	return JobDefinition{
		Trigger: s.TriggerSpec,
		Params:  s.Params,
	}
}
