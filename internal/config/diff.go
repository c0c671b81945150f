package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanged is true if max_tool_rounds or temperature changed.
	AgentChanged bool

	MCPChanged bool            // true if any MCP server was added, removed, or modified
	MCPChanges []MCPServerDiff // per-server diffs
}

// MCPServerDiff describes what changed for a single MCP server between two
// configs.
type MCPServerDiff struct {
	Name     string
	Added    bool
	Removed  bool
	Modified bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}

	// Agent tuning
	if old.Agent != new.Agent {
		d.AgentChanged = true
	}

	// Build MCP server lookup maps keyed by name.
	oldServers := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldServers[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newServers := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newServers[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	// Detect modified and removed servers.
	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{
				Name:    name,
				Removed: true,
			})
			d.MCPChanged = true
			continue
		}
		if serverChanged(oldSrv, newSrv) {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{
				Name:     name,
				Modified: true,
			})
			d.MCPChanged = true
		}
	}

	// Detect added servers.
	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{
				Name:  name,
				Added: true,
			})
			d.MCPChanged = true
		}
	}

	return d
}

// serverChanged compares two MCP server configs with the same name.
func serverChanged(old, new *MCPServerConfig) bool {
	if old.Transport != new.Transport || old.Command != new.Command || old.URL != new.URL {
		return true
	}
	if len(old.Env) != len(new.Env) {
		return true
	}
	for k, v := range old.Env {
		if nv, ok := new.Env[k]; !ok || nv != v {
			return true
		}
	}
	return false
}
