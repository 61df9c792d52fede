// Package model contains the record structs shared across packages.
package model

import (
	"time"
)

// BarcodeSource describes where an unfound barcode was reported from.
type BarcodeSource string

const (
	SourceManual       BarcodeSource = "manual"
	SourceBulkImport   BarcodeSource = "bulk_import"
	SourceDeviceReport BarcodeSource = "device_report"
)

// BarcodeStatus is the lifecycle of a queue entry. Only "pending" exists
// today; the field is kept so resolved/abandoned states can be added without
// a migration.
type BarcodeStatus string

const (
	StatusPending BarcodeStatus = "pending"
)

// BarcodeRecord is one entry in the unfound-barcode queue, keyed by the
// barcode value itself so re-submissions upsert instead of duplicating.
type BarcodeRecord struct {
	Barcode    string        `json:"barcode"`
	Source     BarcodeSource `json:"source"`
	DeviceID   string        `json:"deviceId,omitempty"`
	Location   string        `json:"location,omitempty"`
	Status     BarcodeStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	RetryCount int           `json:"retryCount"`
	LastRetry  *time.Time    `json:"lastRetry,omitempty"`
}

// CatalogSource records which path produced a catalog entry.
type CatalogSource string

const (
	CatalogSourceWorker   CatalogSource = "background_processor"
	CatalogSourcePromoted CatalogSource = "background_processor_verified"
	CatalogSourceManual   CatalogSource = "manual"
	CatalogSourceMigrated CatalogSource = "migrated"
)

// CatalogRecord is a resolved product, keyed by barcode. The worker never
// overwrites an existing record; verification is an admin action.
type CatalogRecord struct {
	Barcode           string        `json:"barcode"`
	Name              string        `json:"name"`
	Price             string        `json:"price"`
	MRP               string        `json:"mrp"`
	Image             string        `json:"image"`
	Brand             string        `json:"brand,omitempty"`
	Category          string        `json:"category,omitempty"`
	Description       string        `json:"description,omitempty"`
	Verified          bool          `json:"verified"`
	Source            CatalogSource `json:"source"`
	CreatedAt         time.Time     `json:"createdAt"`
	ScrapedAt         *time.Time    `json:"scrapedAt,omitempty"`
	VerifiedAt        *time.Time    `json:"verifiedAt,omitempty"`
	OriginalUnfoundID string        `json:"originalUnfoundId,omitempty"`
	StagingID         string        `json:"stagingId,omitempty"`
}

// StagingRecord is a provisionally scraped product awaiting the
// verify-then-promote workflow. Keyed by a generated id, not barcode.
type StagingRecord struct {
	ID                string     `json:"id"`
	Barcode           string     `json:"barcode"`
	Name              string     `json:"name"`
	Price             string     `json:"price"`
	MRP               string     `json:"mrp"`
	Image             string     `json:"image"`
	Brand             string     `json:"brand,omitempty"`
	Category          string     `json:"category,omitempty"`
	Description       string     `json:"description,omitempty"`
	AddedAt           time.Time  `json:"addedAt"`
	ScrapedAt         *time.Time `json:"scrapedAt,omitempty"`
	OriginalUnfoundID string     `json:"originalUnfoundId,omitempty"`
}

// ProductFields is the extractor's output for one barcode. The zero values
// of Name and Price are the "not found" defaults; Image is always populated
// by the time extraction returns (real, synthesized, or placeholder).
type ProductFields struct {
	Barcode string `json:"barcode"`
	Name    string `json:"name"`
	Price   string `json:"price"`
	MRP     string `json:"mrp"`
	Image   string `json:"image"`
}

// Found reports whether extraction produced at least one of the two
// required fields. Image never gates success.
func (p ProductFields) Found() bool {
	return p.Name != "" || p.Price != ""
}

// ProcessingStatus is the worker's process-wide progress snapshot. It is
// in-memory only and resets on restart.
type ProcessingStatus struct {
	Running        bool       `json:"running"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
	ProcessedCount int        `json:"processedCount"`
	SuccessCount   int        `json:"successCount"`
	ErrorCount     int        `json:"errorCount"`
	CurrentBarcode string     `json:"currentBarcode,omitempty"`
}

// HistoryEntry is one processed-barcode outcome in the bounded history.
type HistoryEntry struct {
	Barcode     string    `json:"barcode"`
	ProductName string    `json:"productName,omitempty"`
	Success     bool      `json:"success"`
	ProcessedAt time.Time `json:"processedAt"`
	Result      string    `json:"result"`
	Error       string    `json:"error,omitempty"`
}
