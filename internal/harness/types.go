package harness

// TraceEvent is one entry in a scenario's execution trace.
// Arrivals, gate runs, and promotions interleave in execution order.
type TraceEvent struct {
	Type string `json:"type"` // "arrival", "gate_run", or "promoted"

	// Arrival fields
	OpType string `json:"op_type,omitempty"`
	Action string `json:"action,omitempty"`
	Seq    int64  `json:"seq,omitempty"`
	Status string `json:"status,omitempty"`

	// Gate run fields
	PassToken string `json:"pass_token,omitempty"`
	Passes    int    `json:"passes,omitempty"`
	Promoted  int    `json:"promoted,omitempty"`

	// Promotion fields (OpType and Action also apply)
	Hash string `json:"hash,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains arrivals, gate runs, and promotions in order.
	// Used for promotion_order assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddArrivalTrace records an op arriving at the store.
func (r *Result) AddArrivalTrace(opType, action string, seq int64, status string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   "arrival",
		OpType: opType,
		Action: action,
		Seq:    seq,
		Status: status,
	})
}

// AddRunTrace records one gate run.
func (r *Result) AddRunTrace(passToken string, passes, promoted int) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      "gate_run",
		PassToken: passToken,
		Passes:    passes,
		Promoted:  promoted,
	})
}

// AddPromotedTrace records one promoted op.
func (r *Result) AddPromotedTrace(opType, action, hash string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   "promoted",
		OpType: opType,
		Action: action,
		Hash:   hash,
	})
}
