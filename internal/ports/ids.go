package ports

// IDGenerator produces transaction ids for optimistic sends.
type IDGenerator interface {
	NewTransactionID() string
}
