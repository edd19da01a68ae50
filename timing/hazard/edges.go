package hazard

// Edges counts the dependency edges observed during a run.
type Edges struct {
	// RAW counts true dependencies through SSA operands.
	RAW uint64

	// WAR counts stores that follow an overlapping load.
	WAR uint64

	// WAW counts stores that follow an overlapping store.
	WAW uint64

	// Control counts launched instructions, each depending on the branch
	// that entered its block.
	Control uint64

	// Memory counts loads that follow an overlapping store.
	Memory uint64
}

// Total returns the number of edges of every kind.
func (e Edges) Total() uint64 {
	return e.RAW + e.WAR + e.WAW + e.Control + e.Memory
}

func (e *Edges) count(earlier, later AccessKind) {
	switch {
	case earlier == AccessStore && later == AccessLoad:
		e.Memory++
	case earlier == AccessStore && later == AccessStore:
		e.WAW++
	case earlier == AccessLoad && later == AccessStore:
		e.WAR++
	}
}

// CountControl records the control edges of n launched instructions.
func (t *Tracker) CountControl(n int) {
	t.edges.Control += uint64(n)
}

// Edges returns the edge counters.
func (t *Tracker) Edges() Edges {
	return t.edges
}
