package process

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	receiptsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipts_processed_total",
		Help: "Receipt processing attempts by terminal status of the attempt.",
	}, []string{"status"})

	receiptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipt_processing_duration_seconds",
		Help:    "End-to-end duration of one receipt processing attempt.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	ocrDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipt_ocr_duration_seconds",
		Help:    "Duration of the OCR engine call.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
