package source

// Acker confirms the consumption of a state change message.
type Acker interface {
	Ack(id string) error
}
