// Package process runs the receipt pipeline: claim queued receipts, download
// and persist media, normalize, OCR, extract fields, and reconcile them into
// the linked conversion record.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucianoflow8/flowtracking-receipts/models"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/ocr"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/storage"
)

// ErrDownload wraps a network/HTTP failure while fetching the source media.
// Retryable up to the attempt bound, then terminal.
var ErrDownload = errors.New("media download failed")

var unsafeNameRE = regexp.MustCompile(`[^\w.\-]`)

// Config tunes the processor.
type Config struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	OCRTimeout   time.Duration
	Language     string
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.OCRTimeout <= 0 {
		c.OCRTimeout = 30 * time.Second
	}
	if c.Language == "" {
		c.Language = ocr.DefaultLanguage
	}
}

// Processor drives receipts through pending -> processing -> {done, error}.
// Failed receipts retry into processing until the attempt bound, after which
// they stay in error for manual review.
type Processor struct {
	db        *gorm.DB
	store     storage.Store
	engine    ocr.Engine
	extractor *ocr.Extractor
	log       *zap.Logger
	cfg       Config
	client    *http.Client
	notify    chan uint

	// convLocks serializes conversion updates within this process; the
	// guarded status claim serializes receipt attempts across processes.
	mu        sync.Mutex
	convLocks map[uint]*sync.Mutex
}

func New(db *gorm.DB, store storage.Store, engine ocr.Engine, extractor *ocr.Extractor, log *zap.Logger, cfg Config) *Processor {
	cfg.defaults()
	return &Processor{
		db:        db,
		store:     store,
		engine:    engine,
		extractor: extractor,
		log:       log,
		cfg:       cfg,
		client:    &http.Client{Timeout: 30 * time.Second},
		notify:    make(chan uint, 256),
		convLocks: map[uint]*sync.Mutex{},
	}
}

// Notify queues a receipt for immediate processing. Safe to call from HTTP
// handlers; drops silently when the buffer is full (the poll fallback picks
// the receipt up).
func (p *Processor) Notify(receiptID uint) {
	select {
	case p.notify <- receiptID:
	default:
	}
}

// Run blocks until ctx is cancelled, feeding a worker pool from the notify
// channel and a polling ticker fallback.
func (p *Processor) Run(ctx context.Context) {
	jobs := make(chan uint, 1024)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				p.Handle(ctx, id)
			}
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	// dispatch must keep observing cancellation: with saturated workers and a
	// full buffer a bare send would block shutdown.
	dispatch := func(id uint) bool {
		select {
		case jobs <- id:
			return true
		case <-ctx.Done():
			return false
		}
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.notify:
			if !dispatch(id) {
				return
			}
		case <-ticker.C:
			for _, id := range p.pendingIDs() {
				if !dispatch(id) {
					return
				}
			}
		}
	}
}

// pendingIDs lists receipts eligible for (re)processing.
func (p *Processor) pendingIDs() []uint {
	var ids []uint
	err := p.db.Model(&models.Receipt{}).
		Where("status = ? OR (status = ? AND attempts < ?)",
			models.ReceiptStatusPending, models.ReceiptStatusError, p.cfg.MaxAttempts).
		Order("id").Limit(100).Pluck("id", &ids).Error
	if err != nil {
		p.log.Error("list pending receipts", zap.Error(err))
	}
	return ids
}

// Handle claims and processes one receipt. The guarded UPDATE is the
// cross-process claim: only one attempt per receipt can win the transition
// into processing, so duplicate triggers collapse into a no-op.
func (p *Processor) Handle(ctx context.Context, receiptID uint) {
	res := p.db.Model(&models.Receipt{}).
		Where("id = ? AND (status = ? OR (status = ? AND attempts < ?))",
			receiptID, models.ReceiptStatusPending, models.ReceiptStatusError, p.cfg.MaxAttempts).
		Update("status", models.ReceiptStatusProcessing)
	if res.Error != nil {
		p.log.Error("claim receipt", zap.Uint("receipt_id", receiptID), zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		return
	}

	var rec models.Receipt
	if err := p.db.First(&rec, receiptID).Error; err != nil {
		p.log.Error("load receipt", zap.Uint("receipt_id", receiptID), zap.Error(err))
		return
	}

	start := time.Now()
	err := p.process(ctx, &rec)
	receiptDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail(&rec, err)
		return
	}

	rec.Status = models.ReceiptStatusDone
	rec.LastError = ""
	if err := p.db.Save(&rec).Error; err != nil {
		p.log.Error("save receipt", zap.Uint("receipt_id", rec.ID), zap.Error(err))
		return
	}
	receiptsProcessed.WithLabelValues(models.ReceiptStatusDone).Inc()
	p.log.Info("receipt processed",
		zap.Uint("receipt_id", rec.ID),
		zap.Uintp("conversion_id", rec.ConversionID),
		zap.Int("attempts", rec.Attempts))
}

func (p *Processor) process(ctx context.Context, rec *models.Receipt) error {
	raw, err := p.fetch(ctx, rec)
	if err != nil {
		return err
	}
	img, err := ocr.Normalize(raw)
	if err != nil {
		return err
	}
	octx, cancel := context.WithTimeout(ctx, p.cfg.OCRTimeout)
	defer cancel()
	ocrStart := time.Now()
	text, err := p.engine.RecognizeText(octx, img, p.cfg.Language)
	ocrDuration.Observe(time.Since(ocrStart).Seconds())
	if err != nil {
		return err
	}
	fields := p.extractor.Extract(text)
	return p.apply(rec, fields)
}

// fetch returns the receipt bytes, downloading and persisting them first when
// this is the initial attempt. FilePath is set exactly once; later attempts
// read back from blob storage and never re-download.
func (p *Processor) fetch(ctx context.Context, rec *models.Receipt) ([]byte, error) {
	if rec.FilePath != "" {
		data, err := p.store.Get(ctx, rec.FilePath)
		if err != nil {
			return nil, fmt.Errorf("%w: read back %s: %v", ErrDownload, rec.FilePath, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.MediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrDownload, rec.MediaURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	url, err := p.store.Put(ctx, p.storagePath(rec), data, rec.ContentType)
	if err != nil {
		return nil, fmt.Errorf("persist receipt bytes: %w", err)
	}
	rec.FilePath = url
	if err := p.db.Model(rec).Update("file_path", url).Error; err != nil {
		return nil, fmt.Errorf("record file path: %w", err)
	}
	return data, nil
}

// storagePath namespaces the blob by project/line/timestamp.
func (p *Processor) storagePath(rec *models.Receipt) string {
	name := sanitizeFilename(path.Base(rec.MediaURL))
	if name == "" || name == "." || name == "/" {
		ext := "jpg"
		if parts := strings.SplitN(rec.ContentType, "/", 2); len(parts) == 2 && parts[1] != "" {
			ext = parts[1]
		}
		name = uuid.NewString() + "." + ext
	}
	return fmt.Sprintf("receipts/%s/%s/%d-%s", rec.ProjectID, rec.LineID, time.Now().UnixMilli(), name)
}

func sanitizeFilename(name string) string {
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	return unsafeNameRE.ReplaceAllString(name, "_")
}

// apply merges extracted fields into the linked conversion. The amount is
// reconciled monotonically against both the externally supplied amount and the
// currently stored one; every other extracted field is overwritten directly,
// last successful extraction wins.
func (p *Processor) apply(rec *models.Receipt, fields ocr.Fields) error {
	conv, err := p.conversionFor(rec)
	if err != nil {
		return err
	}

	lock := p.convLock(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	return p.db.Transaction(func(tx *gorm.DB) error {
		// Row lock: two receipts for the same conversion handled in different
		// processes must not both read the stale amount and commit a lost
		// update. The sqlite driver ignores the clause; sqlite serializes
		// writers anyway.
		var cur models.Conversion
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, conv.ID).Error; err != nil {
			return fmt.Errorf("load conversion %d: %w", conv.ID, err)
		}

		amount := ocr.ReconcileAmount(fields.Amount, cur.Amount)
		updates := map[string]any{
			"amount":         amount,
			"operation_no":   fields.OperationNo,
			"reference":      fields.Reference,
			"origin_name":    fields.OriginName,
			"origin_cuit":    fields.OriginCUIT,
			"origin_account": fields.OriginAccount,
			"origin_bank":    fields.OriginBank,
			"dest_name":      fields.DestName,
			"dest_cuit":      fields.DestCUIT,
			"dest_account":   fields.DestAccount,
			"dest_bank":      fields.DestBank,
		}
		if rec.FilePath != "" {
			updates["file_url"] = rec.FilePath
		}
		if rec.ContentType != "" {
			updates["file_mime"] = rec.ContentType
		}
		if err := tx.Model(&cur).Updates(updates).Error; err != nil {
			return fmt.Errorf("update conversion %d: %w", conv.ID, err)
		}
		return nil
	})
}

// conversionFor resolves the conversion this receipt belongs to: the stored
// link if present, else the newest conversion for (project, contact), else a
// fresh row. The link is recorded so reprocessing stays idempotent.
func (p *Processor) conversionFor(rec *models.Receipt) (*models.Conversion, error) {
	var conv models.Conversion
	if rec.ConversionID != nil {
		if err := p.db.First(&conv, *rec.ConversionID).Error; err != nil {
			return nil, fmt.Errorf("load linked conversion %d: %w", *rec.ConversionID, err)
		}
		return &conv, nil
	}

	// Drop-directory receipts carry no contact; an empty contact must not
	// attach to some unrelated contactless conversion in the project.
	err := gorm.ErrRecordNotFound
	if rec.Contact != "" {
		err = p.db.Where("project_id = ? AND contact = ?", rec.ProjectID, rec.Contact).
			Order("id desc").First(&conv).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conv = models.Conversion{ProjectID: rec.ProjectID, Contact: rec.Contact}
		if rec.Caption != "" {
			conv.Concept = &rec.Caption
		}
		if err := p.db.Create(&conv).Error; err != nil {
			return nil, fmt.Errorf("create conversion: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("find conversion: %w", err)
	}

	rec.ConversionID = &conv.ID
	if err := p.db.Model(rec).Update("conversion_id", conv.ID).Error; err != nil {
		return nil, fmt.Errorf("link conversion: %w", err)
	}
	return &conv, nil
}

// fail translates a processing error into a status transition. The linked
// conversion is left untouched: a failed attempt must never clobber a
// previously good value. Undecodable media is terminal and never retried.
func (p *Processor) fail(rec *models.Receipt, err error) {
	rec.Attempts++
	if errors.Is(err, ocr.ErrUnsupportedFormat) && rec.Attempts < p.cfg.MaxAttempts {
		rec.Attempts = p.cfg.MaxAttempts
	}
	rec.Status = models.ReceiptStatusError
	rec.LastError = truncate(err.Error(), 500)
	if dbErr := p.db.Save(rec).Error; dbErr != nil {
		p.log.Error("save failed receipt", zap.Uint("receipt_id", rec.ID), zap.Error(dbErr))
	}
	receiptsProcessed.WithLabelValues(models.ReceiptStatusError).Inc()
	p.log.Warn("receipt processing failed",
		zap.Uint("receipt_id", rec.ID),
		zap.Int("attempts", rec.Attempts),
		zap.Bool("retryable", rec.Attempts < p.cfg.MaxAttempts),
		zap.Error(err))
}

func (p *Processor) convLock(id uint) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.convLocks[id]
	if !ok {
		l = &sync.Mutex{}
		p.convLocks[id] = l
	}
	return l
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
