package core

// Origin information of an operation, established by the transport layer
// before any use case runs.
type Origin struct {
	AccountID  uint64
	Privileged bool
}
