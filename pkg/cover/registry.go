package cover

// SourceFactory builds a provider source from its dependencies.
type SourceFactory func(deps SourceDeps) Source

var (
	sourceRegistry = make(map[string]SourceFactory)
	sourceNames    []string
)

// RegisterSource registers a source factory under its display name.
// Called from provider packages' init functions.
func RegisterSource(name string, factory SourceFactory) {
	if _, ok := sourceRegistry[name]; !ok {
		sourceNames = append(sourceNames, name)
	}
	sourceRegistry[name] = factory
}

// RegisteredSourceNames returns the registered names in registration order.
func RegisteredSourceNames() []string {
	out := make([]string, len(sourceNames))
	copy(out, sourceNames)
	return out
}

// buildSources instantiates every registered source.
func buildSources(deps SourceDeps) map[string]Source {
	out := make(map[string]Source, len(sourceRegistry))
	for name, factory := range sourceRegistry {
		out[name] = factory(deps)
	}
	return out
}
