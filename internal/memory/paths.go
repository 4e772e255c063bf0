package memory

import (
	"path/filepath"
	"strings"
)

// SafeName returns a filesystem-safe version of an agent id.
func SafeName(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "..", "_")
	return r.Replace(strings.TrimSpace(name))
}

// AgentDir returns the path to an agent's directory: <home>/agents/<safe_id>/.
func AgentDir(home, agentID string) string {
	return filepath.Join(home, "agents", SafeName(agentID))
}

// JournalPath returns the path to an agent's journal: <agentDir>/journal.md.
func JournalPath(agentDir string) string {
	return filepath.Join(agentDir, "journal.md")
}

// ProfilePath returns the path to an agent's profile: <agentDir>/profile.yaml.
func ProfilePath(agentDir string) string {
	return filepath.Join(agentDir, "profile.yaml")
}

// BriefPath returns the shared workspace brief: <home>/brief.md.
func BriefPath(home string) string {
	return filepath.Join(home, "brief.md")
}
