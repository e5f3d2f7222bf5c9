package testutil

import (
	"fmt"

	"github.com/sluicedb/sluice/internal/op"
)

// OpFactory builds ops with auto-assigned arrival sequences, sharing
// one ArrivalClock so seq values reflect construction order.
type OpFactory struct {
	clock  *ArrivalClock
	origin string
}

// NewOpFactory creates a factory attributing ops to the given origin.
func NewOpFactory(origin string) *OpFactory {
	return &OpFactory{
		clock:  NewArrivalClock(),
		origin: origin,
	}
}

// Independent builds an op with no dependency reference.
// Panics on invalid input; test fixtures fail loudly.
func (f *OpFactory) Independent(typ op.Type, action string) op.Op {
	o, err := op.New(typ, action, "", f.origin, f.clock.Next())
	if err != nil {
		panic(fmt.Sprintf("testutil: build op: %v", err))
	}
	return o
}

// Dependent builds an op referencing a prerequisite action.
func (f *OpFactory) Dependent(typ op.Type, action, dependency string) op.Op {
	o, err := op.New(typ, action, dependency, f.origin, f.clock.Next())
	if err != nil {
		panic(fmt.Sprintf("testutil: build op: %v", err))
	}
	return o
}
