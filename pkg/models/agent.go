package models

// Agent is a file-backed definition loaded from <agents-dir>/<id>/CLAUDE.md.
// ID is the directory name; Body is the free-markdown personality prompt.
type Agent struct {
	ID            string   `yaml:"-"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
	Skills        []string `yaml:"skills,omitempty"`
	AllowedTools  []string `yaml:"allowed_tools,omitempty"`
	AllowedMCPs   []string `yaml:"allowed_mcps,omitempty"`
	IconColor     string   `yaml:"icon_color,omitempty"`
	DefaultModel  string   `yaml:"default_model,omitempty"`
	Body          string   `yaml:"-"`
	Deleted       bool     `yaml:"-"`
}

// DisplayName renders a human-friendly sender name from an agent id when
// no richer Agent record is available, e.g. "backend-dev" -> "Backend Dev".
func DisplayName(agentID string) string {
	if agentID == "" {
		return "PM"
	}
	runes := []rune(agentID)
	out := make([]rune, 0, len(runes))
	capitalize := true
	for _, r := range runes {
		switch r {
		case '-', '_':
			out = append(out, ' ')
			capitalize = true
		default:
			if capitalize && r >= 'a' && r <= 'z' {
				r = r - 'a' + 'A'
				capitalize = false
			} else {
				capitalize = false
			}
			out = append(out, r)
		}
	}
	return string(out)
}
