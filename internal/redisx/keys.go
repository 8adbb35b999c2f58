package redisx

import "time"

const (
	// Idempotency record: idem:checkout:{user_id}:{key} -> json(idempotency.Record)
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// In-flight claim for a key: idem:checkout:lock:{user_id}:{key} -> "1"
	KeyIdemCheckoutLock = "idem:checkout:lock:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "user_id": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
