// models.go - Documents stored in MongoDB

package storage

import (
	"errors"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
	"github.com/shopspring/decimal"
)

// Collection names
const (
	CollectionPORequests = "po_requests"
	CollectionJobs       = "jobs"
	CollectionAPIUsage   = "api_usage_log"
	CollectionSettings   = "settings"

	// SettingAssistEnabled is the settings key of the assist toggle.
	SettingAssistEnabled = "assist_matching_enabled"

	// UploadDateLayout is how invoice_upload_date is written.
	UploadDateLayout = "2006-01-02 15:04:05"
)

var (
	// ErrPOUnavailable means the PO already carries an invoice or is gone.
	ErrPOUnavailable = errors.New("PO already has invoice or not approved")
	// ErrNotFound is returned when a keyed document does not exist.
	ErrNotFound = errors.New("not found")
)

// PORequest is a purchase order document.
type PORequest struct {
	ID                int     `bson:"_id" json:"id"`
	TechName          string  `bson:"tech_name" json:"tech_name"`
	JobName           string  `bson:"job_name" json:"job_name"`
	Status            string  `bson:"status" json:"status"`
	EstimatedCost     float64 `bson:"estimated_cost" json:"estimated_cost"`
	InvoiceFilename   string  `bson:"invoice_filename,omitempty" json:"invoice_filename,omitempty"`
	InvoiceNumber     string  `bson:"invoice_number,omitempty" json:"invoice_number,omitempty"`
	InvoiceCost       string  `bson:"invoice_cost,omitempty" json:"invoice_cost,omitempty"`
	InvoiceUploadDate string  `bson:"invoice_upload_date,omitempty" json:"invoice_upload_date,omitempty"`
	MatchMethod       string  `bson:"match_method,omitempty" json:"match_method,omitempty"`
}

// Eligible reports whether the PO can receive an invoice.
func (p PORequest) Eligible() bool {
	return p.Status == "approved" && p.InvoiceFilename == ""
}

// EligiblePO converts the document to the matching view.
func (p PORequest) EligiblePO() matching.EligiblePO {
	return matching.EligiblePO{
		ID:            p.ID,
		JobName:       p.JobName,
		EstimatedCost: decimal.NewFromFloat(p.EstimatedCost),
	}
}

// Job is an entry of the jobs collection. Active is 1 for active jobs.
type Job struct {
	ID      int    `bson:"_id" json:"id"`
	JobName string `bson:"job_name" json:"job_name"`
	Year    int    `bson:"year" json:"year"`
	Active  int    `bson:"active" json:"active"`
}

// MatchRecord is the write applied to a PO when an invoice group is filed.
type MatchRecord struct {
	POID          int
	InvoiceNumber string
	Cost          string
	Filename      string
	MatchMethod   string
	UploadedAt    time.Time
}

// UsageStats summarizes the assist audit log and match methods.
type UsageStats struct {
	TotalCalls   int64            `json:"total_calls"`
	Successful   int64            `json:"successful"`
	TotalCost    float64          `json:"total_cost"`
	SuccessRate  float64          `json:"success_rate"`
	MatchMethods map[string]int64 `json:"match_methods"`
}

// SuccessRatePercent is successful/total as a percentage, 0 when empty.
func SuccessRatePercent(successful, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

// matchUpdate is the $set document of RecordMatch.
func matchUpdate(rec MatchRecord) map[string]interface{} {
	cost := decimal.Zero
	if d, err := decimal.NewFromString(rec.Cost); err == nil {
		cost = d
	}
	estimated, _ := cost.Float64()
	return map[string]interface{}{
		"invoice_filename":    rec.Filename,
		"invoice_number":      rec.InvoiceNumber,
		"invoice_cost":        rec.Cost,
		"invoice_date":        "N/A",
		"invoice_upload_date": rec.UploadedAt.Format(UploadDateLayout),
		"estimated_cost":      estimated,
		"match_method":        rec.MatchMethod,
	}
}
