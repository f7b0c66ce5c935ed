package process

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucianoflow8/flowtracking-receipts/models"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/ocr"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/storage"
)

// fakeEngine returns canned text, standing in for Tesseract.
type fakeEngine struct {
	text string
	err  error
}

func (f *fakeEngine) RecognizeText(context.Context, []byte, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Conversion{}, &models.Receipt{}))
	return db
}

func testProcessor(t *testing.T, db *gorm.DB, engine ocr.Engine) *Processor {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	return New(db, store, engine, ocr.NewExtractor(nil), zap.NewNop(), Config{
		Workers:     1,
		MaxAttempts: 3,
	})
}

func receiptImage(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(600, 400, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	data := receiptImage(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const recognizedText = `Transferencia enviada
$ 120.000
N° de operación: 45598712
De
Juan Pérez CUIT 20-12345678-9
Para
María Gómez CUIT 27-87654321-3`

func TestProcessSuccessUpdatesConversion(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := imageServer(t)

	known := int64(5000)
	conv := models.Conversion{ProjectID: "p1", Contact: "5491100000001", Amount: &known}
	require.NoError(t, db.Create(&conv).Error)

	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000001",
		MediaURL: srv.URL + "/receipt.png", ContentType: "image/png",
		Status: models.ReceiptStatusPending, ConversionID: &conv.ID,
	}
	require.NoError(t, db.Create(&rec).Error)

	proc.Handle(context.Background(), rec.ID)

	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusDone, rec.Status)
	require.NotEmpty(t, rec.FilePath)

	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.NotNil(t, conv.Amount)
	require.Equal(t, int64(120000), *conv.Amount)
	require.NotNil(t, conv.OperationNo)
	require.Equal(t, "45598712", *conv.OperationNo)
	require.NotNil(t, conv.OriginCUIT)
	require.Equal(t, "20-12345678-9", *conv.OriginCUIT)
	require.NotNil(t, conv.DestCUIT)
	require.Equal(t, "27-87654321-3", *conv.DestCUIT)
	require.NotNil(t, conv.FileURL)
}

func TestProcessCreatesAndLinksConversion(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := imageServer(t)

	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000002",
		Caption: "pago curso", MediaURL: srv.URL + "/receipt.png",
		ContentType: "image/png", Status: models.ReceiptStatusPending,
	}
	require.NoError(t, db.Create(&rec).Error)

	proc.Handle(context.Background(), rec.ID)

	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusDone, rec.Status)
	require.NotNil(t, rec.ConversionID)

	var conv models.Conversion
	require.NoError(t, db.First(&conv, *rec.ConversionID).Error)
	require.Equal(t, "5491100000002", conv.Contact)
	require.NotNil(t, conv.Amount)
	require.Equal(t, int64(120000), *conv.Amount)
	require.NotNil(t, conv.Concept)
	require.Equal(t, "pago curso", *conv.Concept)
}

func TestDownloadFailureExhaustsRetriesWithoutTouchingConversion(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	conv := models.Conversion{ProjectID: "p1", Contact: "5491100000003"}
	require.NoError(t, db.Create(&conv).Error)
	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000003",
		MediaURL: srv.URL + "/missing.jpg", Status: models.ReceiptStatusPending,
		ConversionID: &conv.ID,
	}
	require.NoError(t, db.Create(&rec).Error)

	for i := 0; i < 5; i++ {
		proc.Handle(context.Background(), rec.ID)
	}

	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusError, rec.Status)
	require.Equal(t, 3, rec.Attempts)
	require.Contains(t, rec.LastError, "status 404")

	// A failed attempt never clobbers the conversion; a nil amount stays nil.
	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.Nil(t, conv.Amount)
	require.Nil(t, conv.OriginCUIT)
}

func TestUnsupportedFormatIsTerminal(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not an image"))
	}))
	t.Cleanup(srv.Close)

	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000004",
		MediaURL: srv.URL + "/junk.bin", Status: models.ReceiptStatusPending,
	}
	require.NoError(t, db.Create(&rec).Error)

	proc.Handle(context.Background(), rec.ID)

	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusError, rec.Status)
	// Undecodable bytes are never retried: attempts jump straight to the bound.
	require.Equal(t, 3, rec.Attempts)
	require.Contains(t, rec.LastError, "unsupported image format")
}

func TestEngineFailureLeavesExistingFieldsUntouched(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{err: &ocr.EngineError{Err: errors.New("tesseract crashed")}})
	srv := imageServer(t)

	amount := int64(5000)
	name := "Juan Pérez"
	conv := models.Conversion{ProjectID: "p1", Contact: "5491100000005", Amount: &amount, OriginName: &name}
	require.NoError(t, db.Create(&conv).Error)
	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000005",
		MediaURL: srv.URL + "/receipt.png", Status: models.ReceiptStatusPending,
		ConversionID: &conv.ID,
	}
	require.NoError(t, db.Create(&rec).Error)

	for i := 0; i < 3; i++ {
		proc.Handle(context.Background(), rec.ID)
	}

	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusError, rec.Status)
	require.Equal(t, 3, rec.Attempts)

	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.NotNil(t, conv.Amount)
	require.Equal(t, int64(5000), *conv.Amount)
	require.NotNil(t, conv.OriginName)
	require.Equal(t, "Juan Pérez", *conv.OriginName)
}

func TestReprocessingNeverDecreasesAmount(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := imageServer(t)

	known := int64(200000)
	conv := models.Conversion{ProjectID: "p1", Contact: "5491100000006", Amount: &known}
	require.NoError(t, db.Create(&conv).Error)
	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000006",
		MediaURL: srv.URL + "/receipt.png", ContentType: "image/png",
		Status: models.ReceiptStatusPending, ConversionID: &conv.ID,
	}
	require.NoError(t, db.Create(&rec).Error)

	proc.Handle(context.Background(), rec.ID)
	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.Equal(t, int64(200000), *conv.Amount)

	// Duplicate trigger: force the receipt back through the pipeline.
	require.NoError(t, db.Model(&rec).Update("status", models.ReceiptStatusPending).Error)
	proc.Handle(context.Background(), rec.ID)

	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.Equal(t, int64(200000), *conv.Amount)
}

func TestMonotonicAmountAcrossProcessorInstances(t *testing.T) {
	db := testDB(t)
	// Separate instances do not share the in-process conversion locks, so the
	// monotonic guarantee must hold through the database alone.
	procA := testProcessor(t, db, &fakeEngine{text: recognizedText})
	procB := testProcessor(t, db, &fakeEngine{text: "Transferencia enviada\n$ 50.000"})
	srv := imageServer(t)

	conv := models.Conversion{ProjectID: "p1", Contact: "5491100000008"}
	require.NoError(t, db.Create(&conv).Error)
	rec1 := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000008",
		MediaURL: srv.URL + "/a.png", Status: models.ReceiptStatusPending,
		ConversionID: &conv.ID,
	}
	rec2 := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000008",
		MediaURL: srv.URL + "/b.png", Status: models.ReceiptStatusPending,
		ConversionID: &conv.ID,
	}
	require.NoError(t, db.Create(&rec1).Error)
	require.NoError(t, db.Create(&rec2).Error)

	procA.Handle(context.Background(), rec1.ID)
	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.NotNil(t, conv.Amount)
	require.Equal(t, int64(120000), *conv.Amount)

	procB.Handle(context.Background(), rec2.ID)
	require.NoError(t, db.First(&conv, conv.ID).Error)
	require.Equal(t, int64(120000), *conv.Amount)
}

func TestContactlessReceiptGetsFreshConversion(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := imageServer(t)

	// An unrelated contactless conversion must not attract the receipt.
	other := models.Conversion{ProjectID: "p1", Contact: ""}
	require.NoError(t, db.Create(&other).Error)
	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1",
		MediaURL: srv.URL + "/receipt.png", Status: models.ReceiptStatusPending,
	}
	require.NoError(t, db.Create(&rec).Error)

	proc.Handle(context.Background(), rec.ID)

	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusDone, rec.Status)
	require.NotNil(t, rec.ConversionID)
	require.NotEqual(t, other.ID, *rec.ConversionID)

	require.NoError(t, db.First(&other, other.ID).Error)
	require.Nil(t, other.Amount)
}

func TestRunStopsWhenCancelledWithBacklog(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	for i := 0; i < 500; i++ {
		proc.Notify(uint(i + 1))
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestClaimIsIdempotentUnderDuplicateTriggers(t *testing.T) {
	db := testDB(t)
	proc := testProcessor(t, db, &fakeEngine{text: recognizedText})
	srv := imageServer(t)

	rec := models.Receipt{
		ProjectID: "p1", LineID: "l1", Contact: "5491100000007",
		MediaURL: srv.URL + "/receipt.png", Status: models.ReceiptStatusPending,
	}
	require.NoError(t, db.Create(&rec).Error)

	proc.Handle(context.Background(), rec.ID)
	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusDone, rec.Status)
	first := *rec.ConversionID

	// A done receipt cannot be claimed again.
	proc.Handle(context.Background(), rec.ID)
	require.NoError(t, db.First(&rec, rec.ID).Error)
	require.Equal(t, models.ReceiptStatusDone, rec.Status)
	require.Equal(t, first, *rec.ConversionID)
}
