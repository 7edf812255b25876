package sink

import "fmt"

// Kind classifies a failed send.
type Kind string

const (
	KindNetwork Kind = "network"
	KindStatus  Kind = "status"
	KindOther   Kind = "other"
)

// SendError is returned by Post for every failed send.
type SendError struct {
	Kind       Kind
	StatusCode int // set when Kind == KindStatus
	Err        error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sink: %s failure: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
