// Package sessionbuilder assembles a session's LLM-client configuration
// (prompt, tool allow-list, tool-server bindings, working directory) from
// the file-based agent and skill definitions, generalizing the
// multiagent orchestrator's buildAgentContext (which produces a
// context.Context for an in-process runtime) into a data-producing
// builder, since the Client Manager here needs a concrete struct to hand
// the LLM client rather than a context value.
package sessionbuilder

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/sessiontools"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// promptSeparator joins prompt assembly parts per §4.2.
const promptSeparator = "\n\n---\n\n"

// maxSkillPreviews caps how many skill previews are listed in the
// "Available Skills" prompt section.
const maxSkillPreviews = 12

// commonTools is unioned into every session's allow-list.
var commonTools = []string{"Read", "Write", "Edit", "Glob", "Grep"}

var fileOpsTools = []string{"Read", "Write", "Edit", "Glob", "Grep"}

// pmToolHookPattern matches two of the pm_management tool-server's tools
// (sessiontools' contact_instance and spawn_instance) so the builder's
// registered hook can inject project_id before dispatch.
var pmToolHookPattern = regexp.MustCompile(`^(contact_instance|spawn_instance)$`)

// ClientConfig is the opaque configuration handed to the Client Manager to
// construct an LLM subprocess client.
type ClientConfig struct {
	Model        string
	CWD          string
	SystemPrompt string
	AllowedTools []string
	ToolServers  []string
	Tools        []sessiontools.Def
	StreamFlag   bool
	Permission   string
	Hooks        []Hook
	ResumeToken  *string
}

// Hook is a typed middleware over tool invocations, keyed by a regex
// matched against the tool name; it mutates arguments before dispatch.
// This models the source's PM project_id injection (§4.2, §9) as an
// explicit registry entry instead of a hidden side-channel.
type Hook struct {
	Name    string
	Match   *regexp.Regexp
	Mutate  func(args map[string]any, session *models.Session)
}

// PreToolUseHooks returns the fixed set of PreToolUse hooks a ClientConfig
// should carry for sessionType. Only PM sessions get the project_id
// injection hook, since only PM tools (contact_instance, spawn_instance)
// need it.
func PreToolUseHooks(sessionType models.SessionType) []Hook {
	if sessionType != models.SessionTypePM {
		return nil
	}
	return []Hook{{
		Name:  "pm_management_project_id",
		Match: pmToolHookPattern,
		Mutate: func(args map[string]any, session *models.Session) {
			if session.ProjectID != nil {
				args["project_id"] = session.ProjectID.String()
			}
		},
	}}
}

// Input is everything the builder needs to assemble a ClientConfig.
type Input struct {
	SessionID   string
	SessionType models.SessionType
	WorkingDir  string
	ProjectPath string
	AgentID     string
	ProjectID   string
	Model       string
	ResumeToken *string
	Session     *models.Session
	UserProfile string
}

// Builder assembles ClientConfig values from agent/skill repositories.
type Builder struct {
	agents *agentrepo.Repository
	skills *skillrepo.Repository
}

// New creates a Builder backed by the given repositories.
func New(agents *agentrepo.Repository, skills *skillrepo.Repository) *Builder {
	return &Builder{agents: agents, skills: skills}
}

// Build assembles the ClientConfig for in.SessionType, applying the
// per-type rules table in §4.2.
func (b *Builder) Build(in Input) (*ClientConfig, error) {
	switch in.SessionType {
	case models.SessionTypePM:
		return b.buildPM(in)
	case models.SessionTypeSpecialist:
		return b.buildSpecialist(in)
	case models.SessionTypeAssistant:
		return b.buildAssistant(in)
	case models.SessionTypeAgentAssistant:
		return b.buildAgentAssistant(in)
	case models.SessionTypeSkillAssistant:
		return b.buildSkillAssistant(in)
	default:
		return nil, models.NewError(models.KindValidation, "unknown session type", nil).WithContext("session_type", in.SessionType)
	}
}

func (b *Builder) buildPM(in Input) (*ClientConfig, error) {
	if in.ProjectID == "" {
		return nil, models.NewError(models.KindValidation, "pm session requires project_id", nil)
	}
	prompt := assemblePrompt("", pmTemplate(), "", in.UserProfile)
	toolServers := []string{"pm_management", "common_tools"}
	return &ClientConfig{
		Model:        pickModel(in.Model),
		CWD:          in.ProjectPath,
		SystemPrompt: prompt,
		AllowedTools: unionTools(fileOpsTools, nil),
		ToolServers:  toolServers,
		Tools:        sessiontools.DefsForServers(toolServers),
		StreamFlag:   true,
		Permission:   "bypass",
		Hooks:        PreToolUseHooks(models.SessionTypePM),
		ResumeToken:  in.ResumeToken,
	}, nil
}

func (b *Builder) buildSpecialist(in Input) (*ClientConfig, error) {
	if in.AgentID == "" {
		return nil, models.NewError(models.KindValidation, "specialist session requires agent_id", nil)
	}
	agent, err := b.agents.Get(in.AgentID)
	if err != nil {
		return nil, err
	}
	skillsSection := b.skillPreviewSection(agent.Skills)
	prompt := assemblePrompt(agent.Body, specialistTemplate(), skillsSection, in.UserProfile)
	toolServers := append(append([]string{}, agent.AllowedMCPs...), "common_tools")

	return &ClientConfig{
		Model:        pickModelFromAgent(in.Model, agent.DefaultModel),
		CWD:          in.WorkingDir,
		SystemPrompt: prompt,
		AllowedTools: unionTools(agent.AllowedTools, nil),
		ToolServers:  toolServers,
		Tools:        sessiontools.DefsForServers(toolServers),
		StreamFlag:   true,
		Permission:   "bypass",
		Hooks:        PreToolUseHooks(models.SessionTypeSpecialist),
		ResumeToken:  in.ResumeToken,
	}, nil
}

func (b *Builder) buildAssistant(in Input) (*ClientConfig, error) {
	body := ""
	if in.AgentID != "" {
		if agent, err := b.agents.Get(in.AgentID); err == nil {
			body = agent.Body
		}
	}
	prompt := assemblePrompt(body, assistantTemplate(), "", in.UserProfile)
	cwd := in.ProjectPath
	if cwd == "" {
		cwd = in.WorkingDir
	}
	toolServers := []string{"common_tools"}
	return &ClientConfig{
		Model:        pickModel(in.Model),
		CWD:          cwd,
		SystemPrompt: prompt,
		AllowedTools: unionTools(fileOpsTools, nil),
		ToolServers:  toolServers,
		Tools:        sessiontools.DefsForServers(toolServers),
		StreamFlag:   true,
		Permission:   "bypass",
		ResumeToken:  in.ResumeToken,
	}, nil
}

func (b *Builder) buildAgentAssistant(in Input) (*ClientConfig, error) {
	prompt := assemblePrompt("", agentAssistantTemplate(), "", in.UserProfile)
	cwd := in.ProjectPath
	if cwd == "" {
		cwd = in.WorkingDir
	}
	toolServers := []string{"agent_assistant", "common_tools"}
	return &ClientConfig{
		Model:        pickModel(in.Model),
		CWD:          cwd,
		SystemPrompt: prompt,
		AllowedTools: unionTools(fileOpsTools, nil),
		ToolServers:  toolServers,
		Tools:        sessiontools.DefsForServers(toolServers),
		StreamFlag:   true,
		Permission:   "bypass",
		ResumeToken:  in.ResumeToken,
	}, nil
}

func (b *Builder) buildSkillAssistant(in Input) (*ClientConfig, error) {
	prompt := assemblePrompt("", skillAssistantTemplate(), "", in.UserProfile)
	cwd := in.ProjectPath
	if cwd == "" {
		cwd = in.WorkingDir
	}
	toolServers := []string{"skill_assistant", "common_tools"}
	return &ClientConfig{
		Model:        pickModel(in.Model),
		CWD:          cwd,
		SystemPrompt: prompt,
		AllowedTools: unionTools(fileOpsTools, nil),
		ToolServers:  toolServers,
		Tools:        sessiontools.DefsForServers(toolServers),
		StreamFlag:   true,
		Permission:   "bypass",
		ResumeToken:  in.ResumeToken,
	}, nil
}

// skillPreviewSection renders the "Available Skills" prompt section for up
// to maxSkillPreviews of the given skill ids, each truncated to 500 chars
// by Skill.Preview.
func (b *Builder) skillPreviewSection(skillIDs []string) string {
	if len(skillIDs) == 0 {
		return ""
	}
	skills := b.skills.GetMany(skillIDs)
	if len(skills) == 0 {
		return ""
	}
	if len(skills) > maxSkillPreviews {
		skills = skills[:maxSkillPreviews]
	}
	var sb strings.Builder
	sb.WriteString("## Available Skills\n\n")
	for _, skill := range skills {
		fmt.Fprintf(&sb, "### %s\n%s\n\n", skill.Name, skill.Preview())
	}
	return sb.String()
}

// assemblePrompt concatenates the non-empty parts with the fixed
// separator, in the fixed order: agent body, base template, skills
// section, user profile.
func assemblePrompt(agentBody, baseTemplate, skillsSection, userProfile string) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{agentBody, baseTemplate, skillsSection, userProfile} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	return strings.Join(parts, promptSeparator)
}

// unionTools composes the allow-list: base tools union extra tools, with
// duplicates removed and the result sorted alphabetically. Unknown base
// tools (outside the fixed set below) are dropped with a warning, per
// §4.2's "unknown base tools are dropped" rule.
func unionTools(base, extra []string) []string {
	known := map[string]bool{
		"Read": true, "Write": true, "Edit": true, "Glob": true, "Grep": true,
		"Bash": true, "WebFetch": true, "WebSearch": true, "NotebookEdit": true,
	}
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if seen[name] {
			return
		}
		if !known[name] {
			slog.Default().Warn("dropping unknown base tool", "tool", name)
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, t := range base {
		add(t)
	}
	for _, t := range extra {
		add(t)
	}
	for _, t := range commonTools {
		add(t)
	}
	sort.Strings(out)
	return out
}

func pickModel(hint string) string {
	if hint != "" {
		return hint
	}
	return "sonnet"
}

func pickModelFromAgent(hint, agentDefault string) string {
	if hint != "" {
		return hint
	}
	if agentDefault != "" {
		return agentDefault
	}
	return "sonnet"
}

func pmTemplate() string {
	return "You are the Project Manager for this project. Coordinate specialist " +
		"instances via contact_instance and spawn_instance, and keep PROJECT.md " +
		"up to date with the team's status."
}

func specialistTemplate() string {
	return "You are a specialist instance working a single task inside a project. " +
		"Use contact_pm to report status and ask for help."
}

func assistantTemplate() string {
	return "You are a one-off assistant helping with a focused task."
}

func agentAssistantTemplate() string {
	return "You help the user author and edit agent CLAUDE.md definitions."
}

func skillAssistantTemplate() string {
	return "You help the user author and edit skill SKILL.md definitions."
}
