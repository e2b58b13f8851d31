package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/flujos/pkg/ports"
	"github.com/google/uuid"
)

// DataStore implements ports.DataStore. Every guardar_bd table lands in flujos_registros,
// keyed by the logical table name, so flows never create SQL identifiers.
type DataStore struct {
	db    *sql.DB
	newID func() string
}

// NewDataStore wraps an open database.
func NewDataStore(db *sql.DB) *DataStore {
	return &DataStore{db: db, newID: uuid.NewString}
}

// Write inserts the row once per idempotency key and returns its id.
func (s *DataStore) Write(ctx context.Context, req ports.WriteRequest) (string, error) {
	if req.IdempotencyKey == "" {
		return "", fmt.Errorf("idempotency key is required")
	}
	campos, err := json.Marshal(req.Campos)
	if err != nil {
		return "", fmt.Errorf("failed to marshal campos: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO flujos_registros (id, tabla, campos, instance_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`, s.newID(), req.Tabla, campos, req.InstanceID, req.IdempotencyKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to write row: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT id FROM flujos_registros WHERE idempotency_key = $1`, req.IdempotencyKey).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read existing row: %w", err)
	}
	return id, nil
}
