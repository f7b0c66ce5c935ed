package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucianoflow8/flowtracking-receipts/models"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/ocr"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/storage"
)

func TestEnqueueRecordsFilePathBeforePending(t *testing.T) {
	db := testDB(t)
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	proc := New(db, store, &fakeEngine{text: recognizedText}, ocr.NewExtractor(nil), zap.NewNop(), Config{
		Workers:     1,
		MaxAttempts: 3,
	})
	dir := t.TempDir()
	w := NewWatcher(db, store, proc, zap.NewNop(), dir, "p1", "l1")

	file := filepath.Join(dir, "dropped.png")
	require.NoError(t, os.WriteFile(file, receiptImage(t), 0o644))

	w.enqueue(context.Background(), file)

	// The pending row must never be visible without its blob: a poller
	// claiming it in between would burn an attempt on an empty media URL.
	var rec models.Receipt
	require.NoError(t, db.First(&rec).Error)
	require.Equal(t, models.ReceiptStatusPending, rec.Status)
	require.NotEmpty(t, rec.FilePath)
	require.Equal(t, "image/png", rec.ContentType)

	proc.Handle(context.Background(), rec.ID)
	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusDone, rec.Status)
	require.Zero(t, rec.Attempts)
}
