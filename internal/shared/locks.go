package shared

// StockLockKeys derives the two int32 keys used with
// pg_advisory_xact_lock(int, int) to serialise balance check-then-append
// sequences on one (product, warehouse) pair. Truncation keeps both ids in
// int32 range; collisions only over-serialise, never under-lock.
func StockLockKeys(productID, warehouseID int64) (int32, int32) {
	return int32(productID), int32(warehouseID)
}
