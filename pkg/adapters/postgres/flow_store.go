package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/lib/pq"
)

// FlowStore implements ports.FlowStore. The whole definition is a JSONB document;
// the filterable fields are mirrored into columns.
type FlowStore struct {
	db *sql.DB
}

// NewFlowStore wraps an open database. Call Migrate (or use Open) first.
func NewFlowStore(db *sql.DB) *FlowStore {
	return &FlowStore{db: db}
}

func canalesArray(cs []domain.Canal) pq.StringArray {
	out := make(pq.StringArray, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// Save inserts a new flow (Version 0) or updates it when the stored version matches.
func (s *FlowStore) Save(ctx context.Context, flow *domain.Flow) error {
	next := *flow
	next.Version = flow.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	if flow.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO flujos_flows (id, marca_id, estado, canales, definicion, version, creado_en, actualizado_en)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, next.ID, next.MarcaID, string(next.Estado), canalesArray(next.Canales), doc, next.Version, next.CreadoEn, next.ActualizadoEn)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: flow %s already exists", domain.ErrVersionConflict, flow.ID)
			}
			return fmt.Errorf("failed to insert flow: %w", err)
		}
		flow.Version = next.Version
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE flujos_flows
		SET marca_id = $2, estado = $3, canales = $4, definicion = $5, version = $6, actualizado_en = $7
		WHERE id = $1 AND version = $8
	`, next.ID, next.MarcaID, string(next.Estado), canalesArray(next.Canales), doc, next.Version, next.ActualizadoEn, flow.Version)
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: flow %s is not at version %d", domain.ErrVersionConflict, flow.ID, flow.Version)
	}
	flow.Version = next.Version
	return nil
}

func decodeFlow(doc []byte, version int) (*domain.Flow, error) {
	var f domain.Flow
	if err := json.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	f.Version = version
	f.Normalize()
	return &f, nil
}

// Get loads one flow.
func (s *FlowStore) Get(ctx context.Context, id string) (*domain.Flow, error) {
	var (
		doc     []byte
		version int
	)
	err := s.db.QueryRowContext(ctx, `SELECT definicion, version FROM flujos_flows WHERE id = $1`, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	return decodeFlow(doc, version)
}

// List pushes every filter field into the query.
func (s *FlowStore) List(ctx context.Context, filter ports.FlowFilter) ([]*domain.Flow, error) {
	var (
		where []string
		args  []any
	)
	if filter.MarcaID != "" {
		args = append(args, filter.MarcaID)
		where = append(where, fmt.Sprintf("marca_id = $%d", len(args)))
	}
	if filter.Estado != "" {
		args = append(args, string(filter.Estado))
		where = append(where, fmt.Sprintf("estado = $%d", len(args)))
	}
	if filter.Canal != "" {
		args = append(args, string(filter.Canal))
		where = append(where, fmt.Sprintf("$%d = ANY(canales)", len(args)))
	}
	query := `SELECT definicion, version FROM flujos_flows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY creado_en, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	out := []*domain.Flow{}
	for rows.Next() {
		var (
			doc     []byte
			version int
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		f, err := decodeFlow(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes the flow. Deleting a missing flow is not an error.
func (s *FlowStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flujos_flows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	return nil
}
