package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucianoflow8/flowtracking-receipts/models"
	"github.com/lucianoflow8/flowtracking-receipts/process"
)

var proc *process.Processor

func setupRoutes(r *gin.Engine) {
	r.GET("/healthz", healthzHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/lines/:lineId/incoming", lineAuthMiddleware(), incomingHandler)
	api.POST("/conversions", createConversionHandler)
	api.GET("/conversions/:id", getConversionHandler)
	api.GET("/receipts", listReceiptsHandler)
}

func healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// incomingHandler accepts a forwarded media reference from the messaging
// gateway, enqueues a pending receipt, and acknowledges immediately. All
// download/OCR work happens asynchronously; no processing failure ever
// surfaces to this caller.
func incomingHandler(c *gin.Context) {
	var req struct {
		MediaURL     string `json:"media_url"`
		FileName     string `json:"file_name"`
		Mime         string `json:"mime"`
		CustomerName string `json:"customer_name"`
		Caption      string `json:"caption"`
		Contact      string `json:"contact"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if req.MediaURL == "" {
		// Nothing to process; answer ok so the gateway does not retry.
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	rec := models.Receipt{
		ProjectID:    c.GetString("project_id"),
		LineID:       c.GetString("line_id"),
		CustomerName: req.CustomerName,
		Caption:      req.Caption,
		Contact:      req.Contact,
		MediaURL:     req.MediaURL,
		ContentType:  req.Mime,
		Status:       models.ReceiptStatusPending,
	}
	if err := db.Create(&rec).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "enqueue failed"})
		return
	}
	proc.Notify(rec.ID)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "id": rec.ID})
}

// createConversionHandler is the upstream collaborator boundary: analytics
// inserts the sale/conversion row here before any receipt arrives.
func createConversionHandler(c *gin.Context) {
	var req struct {
		ProjectID string  `json:"project_id" binding:"required"`
		Contact   string  `json:"contact"`
		Amount    *int64  `json:"amount"`
		Concept   *string `json:"concept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	conv := models.Conversion{
		ProjectID: req.ProjectID,
		Contact:   req.Contact,
		Amount:    req.Amount,
		Concept:   req.Concept,
	}
	if err := db.Create(&conv).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "create failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": conv.ID})
}

func getConversionHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var conv models.Conversion
	if err := db.First(&conv, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// listReceiptsHandler lists recent queue rows, optionally filtered by status,
// so permanently failed receipts can be reviewed.
func listReceiptsHandler(c *gin.Context) {
	q := db.Model(&models.Receipt{})
	if s := c.Query("status"); s != "" {
		q = q.Where("status = ?", s)
	}
	if p := c.Query("project_id"); p != "" {
		q = q.Where("project_id = ?", p)
	}
	var items []models.Receipt
	if err := q.Order("id desc").Limit(200).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}
