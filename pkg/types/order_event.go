package types

// OrderEvent is an order as returned by the external order source. CreatedAt is
// kept raw so a single malformed timestamp can be skipped without failing the batch.
type OrderEvent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt string          `json:"created_at"`
	LineItems []OrderLineItem `json:"line_items"`
}

type OrderLineItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}
