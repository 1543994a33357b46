package main

import "testing"

func TestBuildRootCmdRegistersSubcommands(t *testing.T) {
	root := buildRootCmd()

	want := map[string]bool{"serve": false, "agent": false, "skill": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected root command to register %q", name)
		}
	}
}

func TestAgentsCmdHasListSubcommand(t *testing.T) {
	agentsCmd := buildAgentsCmd()
	found := false
	for _, cmd := range agentsCmd.Commands() {
		if cmd.Name() == "list" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected agent command to have a list subcommand")
	}
}

func TestSkillsCmdHasListSubcommand(t *testing.T) {
	skillsCmd := buildSkillsCmd()
	found := false
	for _, cmd := range skillsCmd.Commands() {
		if cmd.Name() == "list" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected skill command to have a list subcommand")
	}
}
