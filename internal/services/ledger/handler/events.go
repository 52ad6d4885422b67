package handler

// -- Pub/Sub Related --

type PurchaseEvent struct {
	PurchaseID     int64    `json:"purchase_id"`
	CustomerID     *int64   `json:"customer_id,omitempty"`
	Total          string   `json:"total"`
	PointsRedeemed int64    `json:"points_redeemed"`
	PointsEarned   int64    `json:"points_earned"`
	Receipt        *Receipt `json:"receipt,omitempty"`
}

type RefundEvent struct {
	RefundID   int64          `json:"refund_id"`
	PurchaseID int64          `json:"purchase_id"`
	Amount     string         `json:"amount"`
	Refund     *RefundReceipt `json:"refund,omitempty"`
}
