package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/domain/content"
	"github.com/quillhq/quill/internal/domain/request"
	"github.com/quillhq/quill/internal/domain/stage"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Content requests ---

const requestColumns = `id, topic, content_type, target_audience, word_count, style_requirements, status, error, created_at, updated_at, completed_at`

func (s *Store) CreateRequest(ctx context.Context, req request.CreateRequest) (*request.Request, error) {
	styleJSON, err := json.Marshal(req.Style)
	if err != nil {
		return nil, fmt.Errorf("marshal style requirements: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO content_requests (id, topic, content_type, target_audience, word_count, style_requirements, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+requestColumns,
		uuid.NewString(), req.Topic, req.ContentType, req.TargetAudience, req.WordCount, styleJSON, request.StatusQueued)

	r, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return &r, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM content_requests WHERE id = $1`, id)

	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) ListRequests(ctx context.Context, limit, offset int) ([]request.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic, content_type, status, created_at
		 FROM content_requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var summaries []request.Summary
	for rows.Next() {
		var sm request.Summary
		if err := rows.Scan(&sm.ID, &sm.Topic, &sm.ContentType, &sm.Status, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

func (s *Store) CountRequestsByStatus(ctx context.Context) (map[request.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM content_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[request.Status]int)
	for rows.Next() {
		var status request.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan request count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateRequestStatus transitions a request from one status to another,
// guarded so a concurrent transition loses cleanly. The reason is stored
// only when the target status is failed; terminal transitions also stamp
// completed_at.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, from, to request.Status, reason string) error {
	if !validID(id) {
		return fmt.Errorf("update request %s: %w", id, domain.ErrNotFound)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE content_requests
		 SET status = $3,
		     error = CASE WHEN $3 = 'failed' THEN $4 ELSE error END,
		     completed_at = CASE WHEN $3 IN ('completed', 'failed') THEN now() ELSE completed_at END,
		     updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, from, to, reason)
	if err != nil {
		return fmt.Errorf("update request %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update request %s status from %s: %w", id, from, domain.ErrConflict)
	}
	return nil
}

// --- Stage tasks ---

const taskColumns = `id, request_id, stage, status, output, error, started_at, completed_at`

func (s *Store) CreateStageTask(ctx context.Context, requestID string, name stage.Name) (*stage.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO stage_tasks (id, request_id, stage, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+taskColumns,
		uuid.NewString(), requestID, name, stage.StatusPending)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create stage task: %w", err)
	}
	return &t, nil
}

func (s *Store) StartStageTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stage_tasks SET status = $2, started_at = now() WHERE id = $1 AND status = $3`,
		id, stage.StatusRunning, stage.StatusPending)
	if err != nil {
		return fmt.Errorf("start stage task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("start stage task %s: %w", id, domain.ErrConflict)
	}
	return nil
}

func (s *Store) FinishStageTask(ctx context.Context, id string, status stage.Status, output json.RawMessage, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stage_tasks SET status = $2, output = $3, error = $4, completed_at = now()
		 WHERE id = $1`,
		id, status, output, errMsg)
	if err != nil {
		return fmt.Errorf("finish stage task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish stage task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListStageTasks(ctx context.Context, requestID string) ([]stage.Task, error) {
	if !validID(requestID) {
		return nil, fmt.Errorf("list stage tasks %s: %w", requestID, domain.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM stage_tasks WHERE request_id = $1 ORDER BY started_at ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list stage tasks: %w", err)
	}
	defer rows.Close()

	var tasks []stage.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- Content pieces ---

const pieceColumns = `id, request_id, title, summary, sections, tags, word_count, reading_time_minutes, quality, created_at`

// SavePiece inserts a finished piece, assigning its ID when unset.
func (s *Store) SavePiece(ctx context.Context, p *content.Piece) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	sectionsJSON, err := json.Marshal(p.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	var qualityJSON []byte
	if p.Assessment != nil {
		qualityJSON, err = json.Marshal(p.Assessment)
		if err != nil {
			return fmt.Errorf("marshal assessment: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO content_pieces (id, request_id, title, summary, sections, tags, word_count, reading_time_minutes, quality, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.RequestID, p.Title, p.Summary, sectionsJSON, pgTextArray(p.Tags),
		p.WordCount, p.ReadingTimeMinutes, qualityJSON, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save piece for request %s: %w", p.RequestID, err)
	}
	return nil
}

func (s *Store) GetPieceByRequest(ctx context.Context, requestID string) (*content.Piece, error) {
	if !validID(requestID) {
		return nil, fmt.Errorf("get piece for request %s: %w", requestID, domain.ErrNotFound)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+pieceColumns+` FROM content_pieces WHERE request_id = $1`, requestID)

	p, err := scanPiece(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get piece for request %s: %w", requestID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get piece for request %s: %w", requestID, err)
	}
	return &p, nil
}

// --- Scan helpers ---

func scanRequest(row scannable) (request.Request, error) {
	var r request.Request
	var styleJSON []byte
	err := row.Scan(&r.ID, &r.Topic, &r.ContentType, &r.TargetAudience, &r.WordCount,
		&styleJSON, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return r, err
	}
	if styleJSON != nil {
		if err := json.Unmarshal(styleJSON, &r.Style); err != nil {
			return r, fmt.Errorf("unmarshal style requirements: %w", err)
		}
	}
	return r, nil
}

func scanTask(row scannable) (stage.Task, error) {
	var t stage.Task
	var output []byte
	err := row.Scan(&t.ID, &t.RequestID, &t.Stage, &t.Status, &output, &t.Error, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return t, err
	}
	if output != nil {
		t.Output = json.RawMessage(output)
	}
	return t, nil
}

func scanPiece(row scannable) (content.Piece, error) {
	var p content.Piece
	var sectionsJSON, qualityJSON []byte
	err := row.Scan(&p.ID, &p.RequestID, &p.Title, &p.Summary, &sectionsJSON, &p.Tags,
		&p.WordCount, &p.ReadingTimeMinutes, &qualityJSON, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(sectionsJSON, &p.Sections); err != nil {
		return p, fmt.Errorf("unmarshal sections: %w", err)
	}
	if qualityJSON != nil {
		p.Assessment = &content.Assessment{}
		if err := json.Unmarshal(qualityJSON, p.Assessment); err != nil {
			return p, fmt.Errorf("unmarshal assessment: %w", err)
		}
	}
	return p, nil
}
