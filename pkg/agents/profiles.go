package agents

import (
	_ "embed"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Agent role names. They double as the agent_type values the manager's
// dispatch tool accepts.
const (
	AgentManager    = "manager"
	AgentResearcher = "researcher"
	AgentCoder      = "coder"
	AgentAnalyst    = "analyst"
	AgentCritic     = "critic"
)

//go:embed "profiles.yaml"
var profilesYAML []byte

// Profile carries the per-role loop tuning. Model is empty in the
// embedded table and assigned from configuration.
type Profile struct {
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	MaxSteps         int     `yaml:"max_steps"`
	MinContentLength int     `yaml:"min_content_length"`
	MaxCodeAttempts  int     `yaml:"max_code_attempts"`
	MaxQueries       int     `yaml:"max_queries"`
	PagesPerQuery    int     `yaml:"pages_per_query"`
}

// Profiles is the role -> profile table.
type Profiles map[string]Profile

// LoadProfiles returns the embedded defaults.
func LoadProfiles() (Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(profilesYAML, &p); err != nil {
		return nil, errors.Wrap(err, "failed to parse embedded agent profiles")
	}
	for _, role := range []string{AgentManager, AgentResearcher, AgentCoder, AgentAnalyst, AgentCritic} {
		if _, ok := p[role]; !ok {
			return nil, errors.Errorf("embedded agent profiles are missing role %s", role)
		}
	}
	return p, nil
}

// Get returns the profile for a role, falling back to the manager's
// numbers for roles the table does not know.
func (p Profiles) Get(role string) Profile {
	if prof, ok := p[role]; ok {
		return prof
	}
	return p[AgentManager]
}

// WithModels returns a copy with per-role models assigned. Roles absent
// from the models map keep their current model.
func (p Profiles) WithModels(models map[string]string) Profiles {
	out := Profiles{}
	for role, prof := range p {
		if m, ok := models[role]; ok && m != "" {
			prof.Model = m
		}
		out[role] = prof
	}
	return out
}
