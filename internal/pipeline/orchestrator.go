// orchestrator.go - Runs one invoice batch from PDF to filed POs

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/common"
	"github.com/bosocmputer/invoice_po_matcher/internal/detect"
	"github.com/bosocmputer/invoice_po_matcher/internal/extract"
	"github.com/bosocmputer/invoice_po_matcher/internal/grouper"
	"github.com/bosocmputer/invoice_po_matcher/internal/matching"
	"github.com/bosocmputer/invoice_po_matcher/internal/storage"
	"go.uber.org/zap"
)

// Store is the part of the purchasing database a batch needs.
type Store interface {
	ListEligiblePOs(ctx context.Context) ([]matching.EligiblePO, error)
	ListActiveJobNames(ctx context.Context) ([]string, error)
	RecordMatch(ctx context.Context, rec storage.MatchRecord) error
	ServiceJobActive(ctx context.Context) (bool, error)
	SetPOJobName(ctx context.Context, poID int, jobName string) error
}

// Splitter writes a subset of the batch PDF under a file name.
type Splitter interface {
	Write(ctx context.Context, doc *extract.Document, pages []int, name string) (string, error)
}

// PageTexter returns the text of one page, "" when none is available.
type PageTexter interface {
	PageText(ctx context.Context, doc *extract.Document, page int) string
}

// Orchestrator runs batches. It holds no per-batch state and is safe to
// share between concurrent requests.
type Orchestrator struct {
	store     Store
	extractor PageTexter
	splitter  Splitter
	assistant *matching.Assistant
	log       *zap.Logger

	// UploadDir receives temporary copies of uploaded batches.
	UploadDir string

	now func() time.Time
}

// New wires an orchestrator. assistant may be nil when no assist provider
// is configured.
func New(store Store, extractor PageTexter, splitter Splitter, assistant *matching.Assistant, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		splitter:  splitter,
		assistant: assistant,
		log:       log,
		UploadDir: configs.UPLOAD_DIR,
		now:       time.Now,
	}
}

// batch is the mutable state of one Run.
type batch struct {
	rc       *common.RequestContext
	doc      *extract.Document
	tag      string
	opts     Options
	summary  *Summary
	base     *matching.POSet
	jobs     []string
	chain    *matching.Chain
	groups   *grouper.Grouper
	reserved map[int]string // PO id -> invoice that claimed it
}

// Run processes the PDF at inputPath. Failures never escape as errors: a
// fatal problem yields a Summary with Success false, Error and Trace set.
// Artifacts written before the failure are kept.
func (o *Orchestrator) Run(ctx context.Context, inputPath, tag string, opts Options) (summary *Summary) {
	summary = newSummary()
	if tag == "" {
		tag = grouper.Timestamp(o.now())
	}
	rc := common.NewRequestContextWithLogger(tag, o.log)
	summary.RequestID = rc.RequestID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			rc.Logger().Error("batch aborted", common.ClassFatalBatchError.Field(), zap.Error(err))
			summary.fail(err, string(debug.Stack()))
		}
	}()

	if err := o.run(ctx, rc, inputPath, tag, opts, summary); err != nil {
		rc.Logger().Error("batch failed", common.ClassFatalBatchError.Field(), zap.Error(err))
		summary.fail(err, string(debug.Stack()))
		return summary
	}

	if rc.TotalTokens.TotalTokens > 0 {
		usage := rc.TotalTokens
		summary.AssistUsage = &usage
	}
	summary.finish()
	rc.Logger().Info("batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("matched", summary.Matched),
		zap.Int("errors", len(summary.Errors)),
		zap.Int("unmatched", len(summary.Unmatched)),
		zap.Any("summary", rc.GetSummary()))
	return summary
}

// RunUpload spools r to a temporary file under UploadDir and runs it.
func (o *Orchestrator) RunUpload(ctx context.Context, r io.Reader, tag string, opts Options) *Summary {
	if tag == "" {
		tag = grouper.Timestamp(o.now())
	}
	path, err := o.spool(r, tag)
	if err != nil {
		summary := newSummary()
		o.log.Error("upload rejected", common.ClassFatalBatchError.Field(), zap.Error(err))
		summary.fail(err, string(debug.Stack()))
		return summary
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.log.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()
	return o.Run(ctx, path, tag, opts)
}

func (o *Orchestrator) spool(r io.Reader, tag string) (string, error) {
	dir := o.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "bulk_"+grouper.SanitizeFilenamePart(tag)+"_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return f.Name(), nil
}

func (o *Orchestrator) run(ctx context.Context, rc *common.RequestContext, inputPath, tag string, opts Options, summary *Summary) error {
	rc.StartStep("open_document")
	doc, err := extract.OpenDocument(inputPath)
	if err != nil {
		rc.EndStep("failed", nil, err)
		return err
	}
	rc.EndStep("success", nil, nil)

	rc.StartStep("load_reference_data")
	pos, err := o.store.ListEligiblePOs(ctx)
	if err != nil {
		rc.EndStep("failed", nil, err)
		return fmt.Errorf("failed to load eligible POs: %w", err)
	}
	jobs, err := o.store.ListActiveJobNames(ctx)
	if err != nil {
		rc.EndStep("failed", nil, err)
		return fmt.Errorf("failed to load active jobs: %w", err)
	}
	rc.EndStep("success", nil, nil)

	rc.Logger().Info("batch started",
		zap.String("input", inputPath),
		zap.Int("pages", doc.PageCount),
		zap.Int("eligible_pos", len(pos)),
		zap.Int("active_jobs", len(jobs)),
		zap.Bool("assist", opts.AssistEnabled && o.assistant != nil),
		zap.Stringer("reservation", opts.Reservation))

	b := &batch{
		rc:       rc,
		doc:      doc,
		tag:      tag,
		opts:     opts,
		summary:  summary,
		base:     matching.NewPOSet(pos),
		jobs:     jobs,
		chain:    matching.NewChain(rc.Logger(), matching.DefaultSteps(o.assistFor(rc, opts))...),
		groups:   grouper.NewGrouper(),
		reserved: map[int]string{},
	}

	rc.StartStep("process_pages")
	for page := 1; page <= doc.PageCount; page++ {
		summary.Processed++
		rc.StartSubStep(fmt.Sprintf("page_%d", page))
		outcome, err := o.processPage(ctx, b, page)
		rc.EndSubStep(outcome)
		if err != nil {
			rc.EndStep("failed", nil, err)
			return err
		}
	}
	rc.EndStep("success", nil, nil)

	rc.StartStep("file_invoices")
	for _, grp := range b.groups.Groups() {
		if err := o.fileGroup(ctx, b, grp); err != nil {
			rc.EndStep("failed", nil, err)
			return err
		}
	}
	rc.EndStep("success", nil, nil)
	return nil
}

// assistFor returns the assist step for one batch, nil when disabled. Each
// batch gets its own copy so token totals land on the right request.
func (o *Orchestrator) assistFor(rc *common.RequestContext, opts Options) matching.Strategy {
	if !opts.AssistEnabled || o.assistant == nil {
		return nil
	}
	a := *o.assistant
	a.OnUsage = rc.AddTokens
	return a.Strategy()
}

// candidates is the eligible set seen by a page of invoice.
func (b *batch) candidates(invoice string) *matching.POSet {
	if b.opts.Reservation != ReserveOnMatch || len(b.reserved) == 0 {
		return b.base
	}
	set := b.base.Clone()
	for id, owner := range b.reserved {
		if owner != invoice {
			set.Remove(id)
		}
	}
	return set
}

// processPage routes one page and returns a short outcome for step tracking.
func (o *Orchestrator) processPage(ctx context.Context, b *batch, page int) (string, error) {
	log := b.rc.Logger().With(zap.Int("page", page))
	text := o.extractor.PageText(ctx, b.doc, page)

	inv, ok := detect.DetectInvoiceNumber(text)
	if !ok {
		name := grouper.UnmatchedFilename(b.tag, page)
		if _, err := o.splitter.Write(ctx, b.doc, []int{page}, name); err != nil {
			return "failed", err
		}
		b.summary.Unmatched = append(b.summary.Unmatched, UnmatchedEntry{
			Page:        page,
			TextPreview: preview(text, unmatchedPreviewChars),
			Filename:    name,
		})
		log.Info("no invoice number on page", common.ClassDetectionMiss.Field())
		return "unmatched", nil
	}

	cost := detect.ExtractCost(text)
	log = log.With(zap.String("invoice_number", inv.Value), zap.String("cost", cost))

	set := b.candidates(inv.Value)
	m, ok := b.chain.Resolve(ctx, matching.Input{Text: text, POs: set, Jobs: b.jobs})
	if !ok {
		name := grouper.ErrorFilename(b.tag, page, inv.Value)
		if _, err := o.splitter.Write(ctx, b.doc, []int{page}, name); err != nil {
			return "failed", err
		}
		b.summary.Errors = append(b.summary.Errors, ErrorEntry{
			Page:          page,
			InvoiceNumber: inv.Value,
			Cost:          cost,
			Error:         reasonNoMatchingPO,
			Message:       fmt.Sprintf("Invoice %s - PO already has invoice or not approved", inv.Value),
			TextPreview:   preview(text, errorPreviewChars),
			Filename:      name,
			Class:         common.ClassResolutionFailure,
		})
		log.Warn("no PO for invoice", common.ClassResolutionFailure.Field())
		return "no PO for " + inv.Value, nil
	}

	po, _ := set.Get(m.POID)
	grp, created := b.groups.Add(page, inv.Value, po, cost, m.Method)
	if created && b.opts.Reservation == ReserveOnMatch {
		b.reserved[po.ID] = inv.Value
	}
	log.Info("page matched",
		zap.Int("po_id", grp.PO.ID),
		zap.String("method", m.Method),
		zap.Bool("new_invoice", created))
	return fmt.Sprintf("PO %d via %s", grp.PO.ID, m.Method), nil
}

func (o *Orchestrator) fileGroup(ctx context.Context, b *batch, grp *grouper.Group) error {
	name := grouper.MatchedFilename(grp.PO, b.tag, grp.InvoiceNumber)
	location, err := o.splitter.Write(ctx, b.doc, grp.Pages, name)
	if err != nil {
		return err
	}

	log := b.rc.Logger().With(
		zap.Int("po_id", grp.PO.ID),
		zap.String("invoice_number", grp.InvoiceNumber))

	rec := storage.MatchRecord{
		POID:          grp.PO.ID,
		InvoiceNumber: grp.InvoiceNumber,
		Cost:          grp.Cost,
		Filename:      name,
		MatchMethod:   grp.Method,
		UploadedAt:    o.now(),
	}
	if err := o.store.RecordMatch(ctx, rec); err != nil {
		log.Warn("match not recorded", common.ClassPersistenceWarning.Field(), zap.Error(err))
		b.summary.Errors = append(b.summary.Errors, ErrorEntry{
			Page:          grp.Pages[0],
			InvoiceNumber: grp.InvoiceNumber,
			Cost:          grp.Cost,
			Error:         reasonNotRecorded,
			Message:       err.Error(),
			Filename:      name,
			Class:         common.ClassPersistenceWarning,
		})
		return nil
	}

	b.summary.Matched++
	b.summary.Details = append(b.summary.Details, DetailEntry{
		Page:          grp.PageRange(),
		PONumber:      grp.PO.ID,
		POLabel:       matching.FormatPONumber(grp.PO.ID, grp.PO.JobName),
		JobName:       grp.PO.JobName,
		EstimatedCost: grp.EstimatedCost().StringFixed(2),
		InvoiceNumber: grp.InvoiceNumber,
		Cost:          grp.Cost,
		Status:        "matched",
		Pages:         len(grp.Pages),
		MatchMethod:   grp.Method,
		Filename:      name,
		Location:      location,
	})
	log.Info("invoice filed", zap.String("filename", name), zap.String("method", grp.Method))

	o.categorizeService(ctx, b, grp.PO, log)
	return nil
}

// categorizeService moves a PO in the service range onto the Service job
// when that job is active. Failures are logged only.
func (o *Orchestrator) categorizeService(ctx context.Context, b *batch, po matching.EligiblePO, log *zap.Logger) {
	if b.opts.ServiceThreshold <= 0 || po.ID < b.opts.ServiceThreshold {
		return
	}
	if !strings.HasPrefix(matching.FormatPONumber(po.ID, po.JobName), "S") {
		return
	}
	active, err := o.store.ServiceJobActive(ctx)
	if err != nil {
		log.Warn("service job lookup failed", common.ClassPersistenceWarning.Field(), zap.Error(err))
		return
	}
	if !active {
		return
	}
	if err := o.store.SetPOJobName(ctx, po.ID, "Service"); err != nil {
		log.Warn("failed to categorize service PO", common.ClassPersistenceWarning.Field(), zap.Error(err))
		return
	}
	log.Info("PO categorized as Service")
}
