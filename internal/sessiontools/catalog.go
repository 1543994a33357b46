package sessiontools

import "encoding/json"

// Def is the dependency-free tool metadata the session builder embeds in
// a sessionbuilder.ClientConfig, so the LLM client can declare tool
// schemas to the model without the builder needing a live Deps value —
// constructing a tool only to read its static Name/Description/Schema
// would otherwise require a Store, Locker, Executor, and Agents
// repository just to assemble a prompt.
type Def struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// toolServerCatalog buckets tool names under the tool-server identifiers
// sessionbuilder assigns per session type (§4.2/§4.7): PM sessions get
// pm_management plus common_tools, specialists get common_tools alone.
var toolServerCatalog = map[string][]string{
	"pm_management": {"contact_instance", "spawn_instance", "list_team_members"},
	"common_tools":  {"contact_pm", "get_session_info", "remind", "show_file"},
}

// specs returns one zero-value instance of every registered tool, used
// only to read their static Name/Description/Schema methods. RemindTool's
// zero value is safe for this: Name/Description/Schema never touch its
// cron field, so no scheduler is started.
func specs() []Tool {
	return []Tool{
		&ContactInstanceTool{},
		&ContactPMTool{},
		&SpawnInstanceTool{},
		&ListTeamMembersTool{},
		&GetSessionInfoTool{},
		&RemindTool{},
		&ShowFileTool{},
	}
}

// DefsForServers returns the Def for every tool named under any of
// servers in toolServerCatalog, in servers order, skipping unknown
// server names and deduplicating tools reachable via more than one
// server.
func DefsForServers(servers []string) []Def {
	byName := make(map[string]Tool)
	for _, t := range specs() {
		byName[t.Name()] = t
	}

	var defs []Def
	seen := make(map[string]bool)
	for _, server := range servers {
		for _, name := range toolServerCatalog[server] {
			if seen[name] {
				continue
			}
			t, ok := byName[name]
			if !ok {
				continue
			}
			seen[name] = true
			defs = append(defs, Def{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
		}
	}
	return defs
}
