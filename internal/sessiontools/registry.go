package sessiontools

// New constructs every inter-session tool wired to the same Deps, plus a
// stop function that must be called on shutdown to cancel the remind
// tool's scheduler. The returned set matches §4.7 in full: contact_pm and
// list_team_members are included unconditionally — the session builder,
// not this package, decides which tools a given session type is actually
// offered (PM-only tools are simply never unioned into a specialist's
// allowed-tools list).
func New(deps Deps) (tools []Tool, stop func()) {
	remind := NewRemindTool(deps)
	tools = []Tool{
		NewContactInstanceTool(deps),
		NewContactPMTool(deps),
		NewSpawnInstanceTool(deps),
		NewListTeamMembersTool(deps),
		NewGetSessionInfoTool(deps),
		remind,
		NewShowFileTool(),
	}
	return tools, remind.Stop
}
