package projectoverlay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

const projectMDFilename = "PROJECT.md"

// writeProjectMD renders PROJECT.md into project's directory, listing the
// assigned PM and team members by resolving their agent ids against the
// agent repository. It is plain markdown body text, not a frontmatter
// document — there is no YAML header to round-trip, so this writes raw
// bytes rather than going through the agent/skill frontmatter renderer.
// Skipped if the file already exists, so re-running CreateProject-style
// flows never clobbers operator edits.
func (o *Overlay) writeProjectMD(ctx context.Context, project *models.Project) error {
	path := filepath.Join(project.Path, projectMDFilename)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	pmLine := "Not assigned"
	if project.PMAgentID != nil {
		if agent, err := o.agents.Get(*project.PMAgentID); err == nil {
			desc := agent.Description
			if desc == "" {
				desc = "No description"
			}
			pmLine = fmt.Sprintf("(%s) %s: %s", agent.ID, agent.Name, desc)
		} else {
			pmLine = *project.PMAgentID
		}
	}

	teamLines := make([]string, 0, len(project.TeamMemberIDs))
	for _, agentID := range project.TeamMemberIDs {
		agent, err := o.agents.Get(agentID)
		if err != nil {
			continue
		}
		desc := agent.Description
		if desc == "" {
			desc = "No description"
		}
		teamLines = append(teamLines, fmt.Sprintf("(%s) %s: %s", agent.ID, agent.Name, desc))
	}
	teamSection := "No team members assigned yet"
	if len(teamLines) > 0 {
		teamSection = strings.Join(teamLines, "\n")
	}

	description := project.Description
	if description == "" {
		description = "No description provided"
	}

	content := fmt.Sprintf(`# %s

Created: %s
Path: %s

## Description

%s

## Project Manager

%s

## Team Members

%s
`, project.Name, time.Now().Format("2006-01-02"), project.Path, description, pmLine, teamSection)

	return os.WriteFile(path, []byte(content), 0o644)
}
