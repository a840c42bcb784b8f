package pipeline

// RunSummary is the persisted record of one generation run (run.json).
type RunSummary struct {
	SpecFile     string            `json:"spec_file"`
	ScenarioFile string            `json:"scenario_file,omitempty"`
	OutputDir    string            `json:"output_dir"`
	Status       string            `json:"status"` // "completed", "partial", "failed"
	Configs      int               `json:"configs"`
	Scenarios    []ScenarioSummary `json:"scenarios"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

// ScenarioSummary records the outcome of one abstract scenario.
type ScenarioSummary struct {
	Name       string   `json:"name"`
	Identifier string   `json:"identifier,omitempty"`
	Status     string   `json:"status"` // "completed", "failed"
	Configs    []string `json:"configs,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Duration   string   `json:"duration"`
}

// RunInfo is what the store needs to know about a run besides its results.
type RunInfo struct {
	SpecFile     string
	ScenarioFile string
	Metadata     map[string]any
}
