package events

// Task types published after checkout.
const (
	TopicOrderCommitted = "order.committed"
	TopicStockConflict  = "order.stock_conflict"
)

// OrderCommitted is published once an order and its stock movements are durable.
type OrderCommitted struct {
	OrderID    string   `json:"orderId"`
	CartID     string   `json:"cartId"`
	Channel    string   `json:"channel"`
	Day        string   `json:"day"`
	ProductIDs []string `json:"productIds"`
	GrandTotal int64    `json:"grandTotal"`
	Status     string   `json:"status"`
	Edited     bool     `json:"edited,omitempty"`
}

// StockConflict is published when a commit lost the race for stock.
type StockConflict struct {
	CartID    string `json:"cartId"`
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Allowed   int    `json:"allowed"`
	Reason    string `json:"reason"`
}
