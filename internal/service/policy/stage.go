package policy

// State of an asynchronous fetch.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Stage is the three-state result of a fetch. The zero value is pending.
type Stage[T any] struct {
	State State
	Value T
	Err   error
}

func Pending[T any]() Stage[T] { return Stage[T]{State: StatePending} }

func Ready[T any](v T) Stage[T] { return Stage[T]{State: StateReady, Value: v} }

func Failed[T any](err error) Stage[T] { return Stage[T]{State: StateFailed, Err: err} }

// FromResult maps a (value, error) pair to a settled stage.
func FromResult[T any](v T, err error) Stage[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Ready(v)
}

func (s Stage[T]) IsPending() bool { return s.State == StatePending }
func (s Stage[T]) IsReady() bool   { return s.State == StateReady }
func (s Stage[T]) IsFailed() bool  { return s.State == StateFailed }
