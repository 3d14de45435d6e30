package synclog

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/integration"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/pagination"
)

const maxErrorText = 4000

// Entry describes the sync attempt being logged.
type Entry struct {
	Integration enums.Integration
	Module      enums.SyncModule
	Action      string
	Reason      enums.SyncReason
	EntityType  enums.EntityType
	EntityID    string
	Request     any
	Attempts    int
}

// ServiceParams wires the sync log service.
type ServiceParams struct {
	DB     *gorm.DB
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

// Service is the audit trail of every sync attempt.
type Service struct {
	db   *gorm.DB
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sync log db required")
	}
	repo := params.Repo
	if repo == nil {
		repo = NewRepository()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{db: params.DB, repo: repo, logg: logg, now: now}, nil
}

// Run is an open sync log row. A nil *Run is valid and records nothing.
type Run struct {
	svc     *Service
	id      int64
	started time.Time
}

func (r *Run) ID() int64 {
	if r == nil {
		return 0
	}
	return r.id
}

// Start opens an active row for a long-running sync.
func (s *Service) Start(ctx context.Context, entry Entry) (*Run, error) {
	started := s.now().UTC()
	row := s.buildRow(entry, enums.SyncLogStatusActive, started)
	if err := s.repo.Create(ctx, s.db, row); err != nil {
		return nil, fmt.Errorf("open sync log: %w", err)
	}
	return &Run{svc: s, id: row.ID, started: started}, nil
}

// Finish closes the run with a terminal status. Closing twice is a no-op.
func (r *Run) Finish(ctx context.Context, status enums.SyncLogStatus, response any, cause error) error {
	if r == nil {
		return nil
	}
	if !status.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "status %q does not close a sync log", status)
	}
	finished := r.svc.now().UTC()
	updates := map[string]any{
		"status":      status,
		"response":    Snapshot(response),
		"error":       errorText(cause),
		"finished_at": finished,
		"duration_ms": finished.Sub(r.started).Milliseconds(),
	}
	closed, err := r.svc.repo.Close(ctx, r.svc.db, r.id, updates)
	if err != nil {
		return fmt.Errorf("close sync log %d: %w", r.id, err)
	}
	if !closed {
		r.svc.logg.Warn(r.svc.logg.WithField(ctx, "sync_log_id", r.id), "sync log already closed")
	}
	return nil
}

// Record writes an entry that is already closed, for short operations.
func (s *Service) Record(ctx context.Context, entry Entry, status enums.SyncLogStatus, response any, cause error, duration time.Duration) error {
	if !status.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "status %q does not close a sync log", status)
	}
	finished := s.now().UTC()
	row := s.buildRow(entry, status, finished.Add(-duration))
	ms := duration.Milliseconds()
	row.Response = Snapshot(response)
	row.Error = errorText(cause)
	row.FinishedAt = &finished
	row.DurationMs = &ms
	if err := s.repo.Create(ctx, s.db, row); err != nil {
		return fmt.Errorf("record sync log: %w", err)
	}
	return nil
}

// ListResult is one newest-first page of log rows.
type ListResult struct {
	Items      []models.SyncLog `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func (s *Service) List(ctx context.Context, filter Filter, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	var beforeID int64
	if cursor != nil {
		beforeID = cursor.ID
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, s.db, filter, beforeID, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, err
	}
	result := &ListResult{Items: rows}
	if len(rows) > limit {
		result.Items = rows[:limit]
		last := result.Items[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

// Purge removes closed rows created before cutoff.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteBefore(ctx, s.db, cutoff)
}

func (s *Service) buildRow(entry Entry, status enums.SyncLogStatus, started time.Time) *models.SyncLog {
	row := &models.SyncLog{
		Integration: entry.Integration,
		Module:      entry.Module,
		Action:      entry.Action,
		Status:      status,
		Request:     Snapshot(entry.Request),
		Attempts:    entry.Attempts,
		StartedAt:   started,
	}
	if entry.Reason != "" {
		reason := string(entry.Reason)
		row.Reason = &reason
	}
	if entry.EntityType != "" {
		entityType := string(entry.EntityType)
		row.EntityType = &entityType
	}
	if entry.EntityID != "" {
		entityID := entry.EntityID
		row.EntityID = &entityID
	}
	return row
}

// Snapshot serializes v for storage with sensitive keys masked. Values that
// cannot be encoded are replaced by a marker naming their type.
func Snapshot(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	var raw []byte
	switch typed := v.(type) {
	case json.RawMessage:
		raw = typed
	case []byte:
		raw = typed
	default:
		data, err := json.Marshal(v)
		if err != nil {
			data, _ = json.Marshal(map[string]string{"unserializable": fmt.Sprintf("%T", v)})
			return datatypes.JSON(data)
		}
		raw = data
	}
	return datatypes.JSON(integration.Redact(raw))
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText]
	}
	return &msg
}
