package authorizable

import "context"

// Plugin resolves identities from an external source. Handles must be a
// cheap, local predicate: the manager consults it before any costlier
// remote lookup is attempted.
type Plugin interface {
	// Handles reports whether this plugin is responsible for the id.
	Handles(id string) bool

	// FindAuthorizable resolves the id. Returns nil when absent.
	FindAuthorizable(ctx context.Context, id string) (Authorizable, error)
}

// PluginFactory creates one Plugin per session. The repository aggregates
// factories at construction time from a statically known list; there is no
// runtime bind/unbind.
type PluginFactory interface {
	NewPlugin() Plugin
}

// NewPlugins instantiates one plugin per factory, dropping factories that
// return nil.
func NewPlugins(factories []PluginFactory) []Plugin {
	var plugins []Plugin
	for _, f := range factories {
		if p := f.NewPlugin(); p != nil {
			plugins = append(plugins, p)
		}
	}
	return plugins
}
