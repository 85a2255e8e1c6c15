package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"specforge/internal/blob"
	"specforge/pkg/domain"
)

// Format identifies an artifact encoding.
type Format string

// Supported artifact encodings.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// AuditAction tags export events on the audit trail.
const AuditAction = "EXPORT_PRODUCT"

// Artifact describes one stored workbook rendering.
type Artifact struct {
	Key         string    `json:"key"`
	Sheet       string    `json:"sheet,omitempty"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	ProductCode string     `json:"product_code"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input is an enqueue request for the worker.
type Input struct {
	ProductID   string
	Formats     []Format
	RequestedBy string
}

// ProductSource supplies the product to materialize.
type ProductSource interface {
	GetProduct(id string) (domain.Product, bool)
}

// AuditLogger records export lifecycle events. The core service satisfies
// this so export events land on the shared audit trail.
type AuditLogger interface {
	AppendAudit(ctx context.Context, action, detail string) error
}

// Worker executes product exports asynchronously.
type Worker struct {
	products ProductSource
	store    blob.Store
	audit    AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker over the given product source and
// artifact store. audit may be nil.
func NewWorker(products ProductSource, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		products: products,
		store:    store,
		audit:    audit,
		queue:    make(chan task, 32),
		jobs:     make(map[string]*Record),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if strings.TrimSpace(input.ProductID) == "" {
		return Record{}, fmt.Errorf("product id required")
	}
	product, ok := w.products.GetProduct(input.ProductID)
	if !ok {
		return Record{}, fmt.Errorf("product %s not found", input.ProductID)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatCSV, FormatJSON}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if format != FormatCSV && format != FormatJSON {
			return Record{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		ProductID:   product.ID,
		ProductCode: product.Code,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, fmt.Sprintf("Queued export %s of %s", id, product.Code))

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		w.fail(id, "export queue full")
		return Record{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	product, ok := w.products.GetProduct(t.input.ProductID)
	if !ok {
		w.fail(t.id, fmt.Sprintf("product %s missing", t.input.ProductID))
		return
	}
	w.setStatus(t.id, StatusRunning, "")

	record, ok := w.Get(t.id)
	if !ok {
		return
	}
	workbook := BuildWorkbook(product)

	var artifacts []Artifact
	for _, format := range record.Formats {
		rendered, err := materialize(t.id, format, workbook)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		for _, artifact := range rendered {
			stored, err := w.store.Put(w.ctx, artifact.key, bytes.NewReader(artifact.payload), blob.PutOptions{
				ContentType: artifact.contentType,
				Metadata:    map[string]string{"product_code": product.Code, "export_id": t.id},
			})
			if err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifacts = append(artifacts, Artifact{
				Key:         stored.Key,
				Sheet:       artifact.sheet,
				Format:      format,
				ContentType: stored.ContentType,
				SizeBytes:   stored.Size,
				URL:         stored.URL,
				CreatedAt:   stored.LastModified,
			})
		}
	}
	w.complete(t.id, artifacts)
}

type renderedArtifact struct {
	key         string
	sheet       string
	contentType string
	payload     []byte
}

// materialize renders the workbook for one format. CSV yields one artifact
// per sheet; JSON yields the whole workbook in a single artifact.
func materialize(exportID string, format Format, workbook Workbook) ([]renderedArtifact, error) {
	prefix := "exports/" + exportID
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(workbook, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal workbook: %w", err)
		}
		return []renderedArtifact{{
			key:         fmt.Sprintf("%s/%s_spec_load.json", prefix, workbook.ProductCode),
			contentType: "application/json",
			payload:     payload,
		}}, nil
	case FormatCSV:
		out := make([]renderedArtifact, 0, len(workbook.Sheets))
		for _, sheet := range workbook.Sheets {
			buf := &bytes.Buffer{}
			writer := csv.NewWriter(buf)
			if err := writer.Write(sheet.Columns); err != nil {
				return nil, err
			}
			for _, row := range sheet.Rows {
				if err := writer.Write(row); err != nil {
					return nil, err
				}
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				return nil, err
			}
			out = append(out, renderedArtifact{
				key:         fmt.Sprintf("%s/%s.csv", prefix, sheet.Name),
				sheet:       sheet.Name,
				contentType: "text/csv",
				payload:     buf.Bytes(),
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func (w *Worker) setStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var code string
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		code = record.ProductCode
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, fmt.Sprintf("Export %s of %s succeeded with %d artifacts", id, code, len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, fmt.Sprintf("Export %s failed: %s", id, reason))
}

func (w *Worker) recordAudit(ctx context.Context, detail string) {
	if w.audit == nil {
		return
	}
	_ = w.audit.AppendAudit(ctx, AuditAction, detail)
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}
