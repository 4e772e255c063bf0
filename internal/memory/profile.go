package memory

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Profile holds optional per-agent prompt settings.
type Profile struct {
	// Instructions are appended to every prompt rendered for the agent.
	Instructions string `yaml:"instructions"`
	Tone         string `yaml:"tone"`
}

// LoadProfile reads <home>/agents/<id>/profile.yaml. A missing file yields a nil profile.
func LoadProfile(home, agentID string) (*Profile, error) {
	data, err := os.ReadFile(ProfilePath(AgentDir(home, agentID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile writes the agent's profile.yaml.
func SaveProfile(home, agentID string, p *Profile) error {
	dir := AgentDir(home, agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(ProfilePath(dir), data, 0o644)
}

// ReadBrief returns the shared workspace brief, or "" when absent.
func ReadBrief(home string) (string, error) {
	data, err := os.ReadFile(BriefPath(home))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WriteBrief replaces the shared workspace brief.
func WriteBrief(home, content string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	return os.WriteFile(BriefPath(home), []byte(content), 0o644)
}
