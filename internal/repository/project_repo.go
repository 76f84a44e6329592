package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"solarcrm/internal/model"
	"solarcrm/internal/pipeline"
	"solarcrm/pkg/metrics"
	"solarcrm/pkg/otel"
	"solarcrm/pkg/outbox"
	"solarcrm/pkg/trace"
)

// ErrProjectNotFound 项目不存在
var ErrProjectNotFound = errors.New("project not found")

const projectsTable = "projects"

type ProjectRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

var _ pipeline.Retriever = (*ProjectRepository)(nil)

func NewProjectRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		outbox: outboxRepo,
		logger: logger,
	}
}

// FetchCandidates 按候选条件取回项目，只投影 fields 中的字段
func (r *ProjectRepository) FetchCandidates(ctx context.Context, pred pipeline.Predicate, fields []pipeline.Field) (recs []pipeline.Record, err error) {
	query, args, err := BuildCandidateQuery(pred, fields)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.DBSpan(ctx, "select", projectsTable)
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("select_candidates", projectsTable, time.Since(start))
		otel.EndSpan(span, err)
	}()

	r.logger.Debug("Fetching candidate projects",
		zap.Int("arg_count", len(args)),
		zap.Int("field_count", len(fields)),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query candidate projects", zap.Error(err))
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		var rec pipeline.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			// jsonb 总是合法 JSON，这里只可能是非对象的文档，交给聚合阶段计为 skipped
			r.logger.Warn("Candidate document is not an object", zap.Error(err))
			rec = pipeline.Record{}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Candidate rows iteration failed", zap.Error(err))
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	r.logger.Debug("Candidate projects fetched", zap.Int("count", len(recs)))
	return recs, nil
}

// BuildCandidateQuery 生成候选查询 SQL 和参数
func BuildCandidateQuery(pred pipeline.Predicate, fields []pipeline.Field) (string, []any, error) {
	where, args, err := CompilePredicate(pred)
	if err != nil {
		return "", nil, err
	}
	projection, err := BuildProjection(fields)
	if err != nil {
		return "", nil, err
	}
	return "SELECT " + projection + " FROM " + projectsTable + " WHERE " + where, args, nil
}

// Get 读取项目文档
func (r *ProjectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	r.logger.Debug("Loading project", zap.String("project_id", id))

	var (
		raw       []byte
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT doc, updated_at FROM projects WHERE id = $1`, id,
	).Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		r.logger.Error("Failed to load project", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}

	var p model.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	p.UpdatedAt = updatedAt
	return &p, nil
}

// Upsert 写入项目文档，并在同一事务中写入 project.updated outbox 事件
func (r *ProjectRepository) Upsert(ctx context.Context, p *model.Project) (ev *model.ProjectUpdatedPayload, err error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}

	ctx, span := otel.DBSpan(ctx, "upsert", projectsTable)
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("upsert", projectsTable, time.Since(start))
		otel.EndSpan(span, err)
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO projects (id, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
		RETURNING updated_at
	`, p.ID, doc).Scan(&updatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert project", zap.String("project_id", p.ID), zap.Error(err))
		return nil, fmt.Errorf("upsert project: %w", err)
	}

	ev = &model.ProjectUpdatedPayload{
		EventID:   uuid.NewString(),
		ProjectID: p.ID,
		PartnerID: p.PartnerID,
		Type:      p.Type,
		UpdatedAt: updatedAt,
		TraceID:   trace.FromContext(ctx),
	}
	if _, err = outbox.InsertEventInTx(ctx, tx, r.outbox, "project", p.ID, model.RoutingKeyProjectUpdated, ev); err != nil {
		r.logger.Error("Failed to insert project.updated outbox event", zap.String("project_id", p.ID), zap.Error(err))
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	p.UpdatedAt = updatedAt
	r.logger.Info("Project upserted",
		zap.String("project_id", p.ID),
		zap.String("project_type", p.Type),
		zap.String("event_id", ev.EventID),
	)
	return ev, nil
}
