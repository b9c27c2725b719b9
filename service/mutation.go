package service

import "context"

// Op is the remote write a mutation resolved to.
type Op int

const (
	// OpNone means the mutation changed nothing and made no remote call.
	OpNone Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "none"
	}
}

// Mutation tracks one optimistic cart change until the remote store has
// confirmed or rejected it.
type Mutation struct {
	ItemID int64
	Op     Op

	done chan struct{}
	err  error
}

func newMutation(itemID int64, op Op) *Mutation {
	return &Mutation{ItemID: itemID, Op: op, done: make(chan struct{})}
}

// completed returns a mutation that is already finished with no remote call.
func completed(itemID int64) *Mutation {
	m := newMutation(itemID, OpNone)
	close(m.done)
	return m
}

func (m *Mutation) finish(err error) {
	m.err = err
	close(m.done)
}

// Done is closed once the remote outcome is known.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Err returns the remote failure, or nil while the write is still in flight.
func (m *Mutation) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Wait blocks until the remote outcome is known or ctx is done.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
