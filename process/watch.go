package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lucianoflow8/flowtracking-receipts/models"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/storage"
)

var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// Watcher enqueues receipt files dropped into a local directory, as an
// alternative intake for a fixed (project, line) scope. Useful for manual
// backfills and local development.
type Watcher struct {
	db        *gorm.DB
	store     storage.Store
	proc      *Processor
	log       *zap.Logger
	dir       string
	projectID string
	lineID    string
}

func NewWatcher(db *gorm.DB, store storage.Store, proc *Processor, log *zap.Logger, dir, projectID, lineID string) *Watcher {
	return &Watcher{db: db, store: store, proc: proc, log: log, dir: dir, projectID: projectID, lineID: lineID}
}

// Run watches the directory until ctx is cancelled. File creation events are
// debounced so partially written files are not picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("watching receipt drop directory", zap.String("dir", w.dir))

	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create && isSupportedExt(ev.Name) {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > 300*time.Millisecond { // stable
					w.enqueue(ctx, name)
					delete(pending, name)
				}
			}
		}
	}
}

// enqueue persists the dropped file to blob storage and inserts a pending
// receipt pointing at it. The blob goes in first: a pending row with neither
// media_url nor file_path would burn a retry the moment the poller sees it.
func (w *Watcher) enqueue(ctx context.Context, fullPath string) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		w.log.Warn("read dropped file", zap.String("file", fullPath), zap.Error(err))
		return
	}
	name := filepath.Base(fullPath)
	contentType := extMime[strings.ToLower(filepath.Ext(name))]

	path := fmt.Sprintf("receipts/%s/%s/%d-%s", w.projectID, w.lineID, time.Now().UnixMilli(), sanitizeFilename(name))
	url, err := w.store.Put(ctx, path, data, contentType)
	if err != nil {
		w.log.Error("persist dropped file", zap.String("file", name), zap.Error(err))
		return
	}

	rec := models.Receipt{
		ProjectID:   w.projectID,
		LineID:      w.lineID,
		ContentType: contentType,
		FilePath:    url,
		Status:      models.ReceiptStatusPending,
	}
	if err := w.db.Create(&rec).Error; err != nil {
		w.log.Error("create receipt for dropped file", zap.String("file", name), zap.Error(err))
		return
	}
	w.log.Info("enqueued dropped receipt", zap.Uint("receipt_id", rec.ID), zap.String("file", name))
	w.proc.Notify(rec.ID)
}

func isSupportedExt(name string) bool {
	_, ok := extMime[strings.ToLower(filepath.Ext(name))]
	return ok
}
