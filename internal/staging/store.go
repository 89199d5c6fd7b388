package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/receipt-capture/constants"
	"github.com/joseph-ayodele/receipt-capture/internal/common"
	"github.com/joseph-ayodele/receipt-capture/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	id              TEXT PRIMARY KEY,
	content_type    TEXT NOT NULL,
	file_name       TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	data_json       TEXT NOT NULL,
	confidence_json TEXT NOT NULL,
	line_items_json TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
`

// Open opens (creating if necessary) the staging database at path. Use
// ":memory:" for an in-memory store.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open staging db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping staging db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create staging schema: %w", err)
	}
	logger.Info("staging.open", "path", path)
	return db, nil
}

// DraftRepository stages projected results for human review.
type DraftRepository interface {
	Save(ctx context.Context, draft *entity.Draft) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	List(ctx context.Context, status *constants.DraftStatus) ([]*entity.Draft, error)
	UpdateFields(ctx context.Context, id uuid.UUID, data map[string]any) error
	SetStatus(ctx context.Context, id uuid.UUID, status constants.DraftStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type draftRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDraftRepository(db *sql.DB, logger *slog.Logger) DraftRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &draftRepository{db: db, logger: logger}
}

// DraftFromResult stages one processed document as a pending-review draft.
func DraftFromResult(result entity.DocumentResult) *entity.Draft {
	now := time.Now().UTC()
	return &entity.Draft{
		ID:          result.ID,
		ContentType: result.ContentType,
		FileName:    result.FileName,
		Status:      constants.DraftStatusPending,
		Data:        result.Data,
		Confidence:  result.Confidence,
		LineItems:   result.LineItems,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *draftRepository) Save(ctx context.Context, draft *entity.Draft) error {
	data, confidence, items, err := marshalDraft(draft)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, content_type, file_name, status, data_json, confidence_json, line_items_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			file_name = excluded.file_name,
			status = excluded.status,
			data_json = excluded.data_json,
			confidence_json = excluded.confidence_json,
			line_items_json = excluded.line_items_json,
			updated_at = excluded.updated_at`,
		draft.ID.String(), draft.ContentType, draft.FileName, string(draft.Status),
		data, confidence, items, draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		r.logger.Error("staging.save_error", "draft_id", draft.ID, "error", err)
		return fmt.Errorf("save draft: %w", err)
	}
	r.logger.Info("staging.save", "draft_id", draft.ID, "status", draft.Status)
	return nil
}

func (r *draftRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, content_type, file_name, status, data_json, confidence_json, line_items_json, created_at, updated_at
		FROM drafts WHERE id = ?`, id.String())
	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("DRAFT_NOT_FOUND", fmt.Sprintf("draft %s", id), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return draft, nil
}

func (r *draftRepository) List(ctx context.Context, status *constants.DraftStatus) ([]*entity.Draft, error) {
	query := `
		SELECT id, content_type, file_name, status, data_json, confidence_json, line_items_json, created_at, updated_at
		FROM drafts`
	args := make([]any, 0, 1)
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.Warn("staging.rows_close_error", "error", cerr)
		}
	}()

	var drafts []*entity.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

// UpdateFields replaces a draft's field data after review edits. Callers are
// expected to pass values already re-validated through the pipeline.
func (r *draftRepository) UpdateFields(ctx context.Context, id uuid.UUID, data map[string]any) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal draft data: %w", err)
	}
	return r.exec(ctx, id, `UPDATE drafts SET data_json = ?, updated_at = ? WHERE id = ?`,
		string(blob), time.Now().UTC(), id.String())
}

func (r *draftRepository) SetStatus(ctx context.Context, id uuid.UUID, status constants.DraftStatus) error {
	return r.exec(ctx, id, `UPDATE drafts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id.String())
}

func (r *draftRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, id, `DELETE FROM drafts WHERE id = ?`, id.String())
}

func (r *draftRepository) exec(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("staging.exec_error", "draft_id", id, "error", err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.NewAppError("DRAFT_NOT_FOUND", fmt.Sprintf("draft %s", id), common.ErrNotFound)
	}
	return nil
}

func marshalDraft(draft *entity.Draft) (data, confidence, items string, err error) {
	d, err := json.Marshal(draft.Data)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal draft data: %w", err)
	}
	c, err := json.Marshal(draft.Confidence)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal draft confidence: %w", err)
	}
	li, err := json.Marshal(draft.LineItems)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal draft line items: %w", err)
	}
	return string(d), string(c), string(li), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*entity.Draft, error) {
	var (
		draft     entity.Draft
		idStr     string
		statusStr string
		dataJSON  string
		confJSON  string
		itemsJSON string
	)
	if err := row.Scan(&idStr, &draft.ContentType, &draft.FileName, &statusStr,
		&dataJSON, &confJSON, &itemsJSON, &draft.CreatedAt, &draft.UpdatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse draft id: %w", err)
	}
	draft.ID = id
	draft.Status = constants.DraftStatus(statusStr)

	if err := json.Unmarshal([]byte(dataJSON), &draft.Data); err != nil {
		return nil, fmt.Errorf("decode draft data: %w", err)
	}
	if err := json.Unmarshal([]byte(confJSON), &draft.Confidence); err != nil {
		return nil, fmt.Errorf("decode draft confidence: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &draft.LineItems); err != nil {
		return nil, fmt.Errorf("decode draft line items: %w", err)
	}
	return &draft, nil
}
