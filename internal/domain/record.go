package domain

import "time"

// CartRecord is the persisted projection of the cart lines.
type CartRecord struct {
	Items     []CartLine `json:"items"`
	Timestamp int64      `json:"timestamp"`
}

// CouponRecord is the persisted projection of the applied coupon.
// It is written independently of CartRecord.
type CouponRecord struct {
	Coupon    *Coupon `json:"coupon"`
	Timestamp int64   `json:"timestamp"`
}

// WrittenAt converts the record timestamp (unix millis) to a time.
func (r CartRecord) WrittenAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}
