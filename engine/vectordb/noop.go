package vectordb

import "context"

// Noop discards every write. It serves deployments that persist
// embeddings in Postgres only and never query a vector index.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Provider() Provider {
	return ProviderNone
}

func (n *Noop) EnsureCollection(context.Context, string, int) error {
	return nil
}

func (n *Noop) UpsertPoints(context.Context, string, []Point) error {
	return nil
}
