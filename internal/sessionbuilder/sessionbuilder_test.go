package sessionbuilder

import (
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
	"github.com/haasonsaas/agentcore/pkg/models"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	agents, err := agentrepo.New(t.TempDir())
	if err != nil {
		t.Fatalf("agentrepo.New: %v", err)
	}
	skills, err := skillrepo.New(t.TempDir())
	if err != nil {
		t.Fatalf("skillrepo.New: %v", err)
	}
	t.Cleanup(func() {
		agents.Close()
		skills.Close()
	})
	return New(agents, skills)
}

func TestBuildPMRequiresProjectID(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Build(Input{SessionType: models.SessionTypePM})
	if err == nil {
		t.Fatalf("expected error for missing project_id")
	}
}

func TestBuildPMAssemblesExpectedConfig(t *testing.T) {
	b := newTestBuilder(t)
	cfg, err := b.Build(Input{
		SessionType: models.SessionTypePM,
		ProjectID:   "proj-1",
		ProjectPath: "/work/proj-1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.CWD != "/work/proj-1" {
		t.Errorf("expected cwd to be project path, got %q", cfg.CWD)
	}
	if cfg.Model != "sonnet" {
		t.Errorf("expected default model sonnet, got %q", cfg.Model)
	}
	if !strings.Contains(cfg.SystemPrompt, "Project Manager") {
		t.Errorf("expected PM template in system prompt, got %q", cfg.SystemPrompt)
	}
	if len(cfg.Hooks) != 1 || cfg.Hooks[0].Name != "pm_management_project_id" {
		t.Fatalf("expected pm project_id hook, got %+v", cfg.Hooks)
	}
	wantServers := []string{"pm_management", "common_tools"}
	for i, s := range wantServers {
		if cfg.ToolServers[i] != s {
			t.Errorf("ToolServers = %v, want %v", cfg.ToolServers, wantServers)
		}
	}
}

func TestBuildSpecialistRequiresAgentID(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Build(Input{SessionType: models.SessionTypeSpecialist})
	if err == nil {
		t.Fatalf("expected error for missing agent_id")
	}
}

func TestBuildSpecialistUsesAgentPromptAndTools(t *testing.T) {
	b := newTestBuilder(t)
	agent := &models.Agent{
		ID:           "backend-dev",
		Name:         "Backend Dev",
		Body:         "You write Go services.",
		Skills:       []string{"testing-101"},
		AllowedTools: []string{"Bash", "Read"},
		AllowedMCPs:  []string{"github"},
		DefaultModel: "opus",
	}
	if err := b.agents.Write(agent); err != nil {
		t.Fatalf("agents.Write: %v", err)
	}
	skill := &models.Skill{ID: "testing-101", Name: "Testing 101", Body: "Write table-driven tests."}
	if err := b.skills.Write(skill); err != nil {
		t.Fatalf("skills.Write: %v", err)
	}

	cfg, err := b.Build(Input{
		SessionType: models.SessionTypeSpecialist,
		AgentID:     "backend-dev",
		WorkingDir:  "/work/session-1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.CWD != "/work/session-1" {
		t.Errorf("expected cwd to be working dir, got %q", cfg.CWD)
	}
	if cfg.Model != "opus" {
		t.Errorf("expected agent default model opus, got %q", cfg.Model)
	}
	if !strings.Contains(cfg.SystemPrompt, "You write Go services.") {
		t.Errorf("expected agent body in prompt, got %q", cfg.SystemPrompt)
	}
	if !strings.Contains(cfg.SystemPrompt, "Testing 101") {
		t.Errorf("expected skill preview section in prompt, got %q", cfg.SystemPrompt)
	}
	if cfg.ToolServers[len(cfg.ToolServers)-1] != "common_tools" {
		t.Errorf("expected common_tools appended last, got %v", cfg.ToolServers)
	}
}

func TestBuildSpecialistRejectsUnknownAgent(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Build(Input{SessionType: models.SessionTypeSpecialist, AgentID: "ghost"})
	if err == nil {
		t.Fatalf("expected error for unknown agent id")
	}
}

func TestBuildAssistantFallsBackToWorkingDirWhenNoProjectPath(t *testing.T) {
	b := newTestBuilder(t)
	cfg, err := b.Build(Input{
		SessionType: models.SessionTypeAssistant,
		WorkingDir:  "/work/scratch",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.CWD != "/work/scratch" {
		t.Errorf("expected cwd fallback to working dir, got %q", cfg.CWD)
	}
	if len(cfg.Hooks) != 0 {
		t.Errorf("expected no hooks for assistant session, got %+v", cfg.Hooks)
	}
}

func TestBuildUnknownSessionTypeFails(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Build(Input{SessionType: models.SessionType("bogus")})
	if err == nil {
		t.Fatalf("expected error for unknown session type")
	}
}

func TestUnionToolsDedupesAndDropsUnknown(t *testing.T) {
	out := unionTools([]string{"Read", "Read", "Sculpt"}, []string{"Bash"})
	want := map[string]bool{"Read": true, "Bash": true, "Write": true, "Edit": true, "Glob": true, "Grep": true}
	if len(out) != len(want) {
		t.Fatalf("unionTools() = %v, want %d entries", out, len(want))
	}
	for _, name := range out {
		if !want[name] {
			t.Errorf("unexpected tool %q in union", name)
		}
	}
	for _, name := range out {
		if name == "Sculpt" {
			t.Errorf("expected unknown tool Sculpt to be dropped")
		}
	}
}

func TestPickModelPrefersHintThenDefault(t *testing.T) {
	if got := pickModel("haiku"); got != "haiku" {
		t.Errorf("pickModel(hint) = %q, want haiku", got)
	}
	if got := pickModel(""); got != "sonnet" {
		t.Errorf("pickModel(\"\") = %q, want sonnet", got)
	}
	if got := pickModelFromAgent("", "opus"); got != "opus" {
		t.Errorf("pickModelFromAgent falls back to agent default, got %q", got)
	}
	if got := pickModelFromAgent("", ""); got != "sonnet" {
		t.Errorf("pickModelFromAgent falls back to sonnet, got %q", got)
	}
}

func TestPreToolUseHooksOnlyForPM(t *testing.T) {
	if hooks := PreToolUseHooks(models.SessionTypeSpecialist); hooks != nil {
		t.Fatalf("expected no hooks for specialist, got %+v", hooks)
	}
	hooks := PreToolUseHooks(models.SessionTypePM)
	if len(hooks) != 1 {
		t.Fatalf("expected exactly one PM hook, got %d", len(hooks))
	}
	if !hooks[0].Match.MatchString("contact_instance") || !hooks[0].Match.MatchString("spawn_instance") {
		t.Errorf("expected hook pattern to match the pm_management tool-server's tool names")
	}
	if hooks[0].Match.MatchString("contact_pm") {
		t.Errorf("expected hook pattern not to match common_tools names")
	}
}
