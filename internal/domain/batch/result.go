package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Action tells what a successful item did to the registry.
type Action string

// Actions reported for successful items.
const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionRetracted Action = "retracted"
)

// Result is the outcome of processing one registry entry in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	action Action
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string, action Action) Result {
	return Result{id: id, status: StatusOK, action: action}
}

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Action returns what a successful item did. Empty for failures.
func (r Result) Action() Action { return r.action }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// IsOK reports whether the item succeeded.
func (r Result) IsOK() bool { return r.status == StatusOK }

// Summary aggregates a batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Summarize counts successes and failures.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.IsOK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// FailAll builds one error result per id.
func FailAll(ids []string, err error) []Result {
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = NewError(id, err)
	}
	return out
}
