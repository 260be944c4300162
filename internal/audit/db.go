package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/apimplane/apim/internal/model"
)

// DBStore stores audit entries in the audits table through database/sql.
type DBStore struct {
	db *sql.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a DBStore. The audits table is created by the
// repository migrations.
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBStore{db: db}, nil
}

// Open connects to Postgres with the lib/pq driver.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Record inserts a single audit entry.
func (s *DBStore) Record(ctx context.Context, entry *model.AuditEntry) error {
	props := entry.Properties
	if props == nil {
		props = map[string]string{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audits (id, organization_id, environment_id, reference_type, reference_id,
			username, event, properties, patch, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID,
		entry.OrganizationID,
		entry.EnvironmentID,
		string(entry.ReferenceType),
		entry.ReferenceID,
		entry.User,
		entry.Event,
		propsJSON,
		entry.Patch,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Search returns one page of entries for a reference, newest first, and the
// total number of matches.
func (s *DBStore) Search(ctx context.Context, q model.AuditQuery) ([]*model.AuditEntry, int, error) {
	if q.ReferenceID == "" || q.ReferenceType == "" {
		return nil, 0, ErrInvalidQuery
	}

	conds := []string{"reference_type = $1", "reference_id = $2"}
	args := []any{string(q.ReferenceType), q.ReferenceID}
	if len(q.Events) > 0 {
		args = append(args, pq.Array(q.Events))
		conds = append(conds, fmt.Sprintf("event = ANY($%d)", len(args)))
	}
	if q.From != nil {
		args = append(args, *q.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audits"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	page, size := normalizePage(q)
	query := fmt.Sprintf(`
		SELECT id, organization_id, environment_id, reference_type, reference_id,
			username, event, properties, patch, created_at
		FROM audits%s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, where, size, (page-1)*size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var refType string
		var propsJSON []byte
		if err := rows.Scan(
			&e.ID,
			&e.OrganizationID,
			&e.EnvironmentID,
			&refType,
			&e.ReferenceID,
			&e.User,
			&e.Event,
			&propsJSON,
			&e.Patch,
			&e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ReferenceType = model.ReferenceType(refType)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal properties: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, total, nil
}
