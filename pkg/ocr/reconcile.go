package ocr

// ReconcileAmount merges the extracted amount with an externally supplied one.
// Both are independent partial observations of the same transfer; keeping the
// larger is a conservative anti-undercount policy, accepted at the risk of
// overcounting on a spurious OCR match. Returns nil only when both are nil.
func ReconcileAmount(extracted, known *int64) *int64 {
	if extracted == nil && known == nil {
		return nil
	}
	var e, k int64
	if extracted != nil {
		e = *extracted
	}
	if known != nil {
		k = *known
	}
	v := e
	if k > e {
		v = k
	}
	return &v
}
