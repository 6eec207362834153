// Package kopano implements the storage consistency core of a groupware
// server: a hierarchical object store kept in lock-step with its denormalized
// folder counters, an append-only change log served incrementally to sync
// clients, and cascading soft/hard deletion over all of it.
package kopano

// New builds a new server with the given options.
func New(withOpt ...Option) (*Server, error) {
	builder, err := newBuilder()
	if err != nil {
		return nil, err
	}

	for _, opt := range withOpt {
		opt.config(builder)
	}

	return builder.build()
}
