// Package sqlite is a local gateway backend on SQLite. Every table of the dashboard is stored
// as JSON documents in one rows table, so boards need no migrations when payload fields change.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/feed"
	"github.com/h0rv/opsdash/internal/gateway"
)

// identifier restricts column names interpolated into JSON paths.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store wraps SQLite document storage.
type Store struct {
	db  *sql.DB
	pub feed.Publisher
	now func() time.Time
}

// Open opens or creates the database at path. pub may be nil.
func Open(path string, pub feed.Publisher) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the probe and the dashboard read while another process writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db, pub: pub, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rows (
		tbl  TEXT NOT NULL,
		id   TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (tbl, id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func orderClause(order domain.Order) (string, error) {
	if order.Column == "" {
		return " ORDER BY rowid", nil
	}
	if !identifier.MatchString(order.Column) {
		return "", fmt.Errorf("invalid order column %q", order.Column)
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY sort_key(json_extract(data, '$.%s')) %s, rowid", order.Column, dir), nil
}

// whereClause translates a gateway.Filter into SQL. LIKE-free matching keeps user input
// containing % or _ literal.
func whereClause(filter gateway.Filter) (string, []any, error) {
	clauses := []string{"tbl = ?"}
	var args []any

	if filter.Text != "" && len(filter.TextColumns) > 0 {
		var ors []string
		for _, col := range filter.TextColumns {
			if !identifier.MatchString(col) {
				return "", nil, fmt.Errorf("invalid text column %q", col)
			}
			ors = append(ors, fmt.Sprintf("instr(fold(json_extract(data, '$.%s')), fold(?)) > 0", col))
			args = append(args, filter.Text)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if filter.Tag != "" {
		if !identifier.MatchString(filter.TagColumn) {
			return "", nil, fmt.Errorf("invalid tag column %q", filter.TagColumn)
		}
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(data, '$.%s') WHERE value = ?)", filter.TagColumn))
		args = append(args, filter.Tag)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func scanRows(rows *sql.Rows) ([]gateway.Row, error) {
	defer rows.Close()
	out := []gateway.Row{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r gateway.Row
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchAll returns every row of table in order.
func (s *Store) FetchAll(ctx context.Context, table string, order domain.Order) ([]gateway.Row, error) {
	orderBy, err := orderClause(order)
	if err != nil {
		return nil, gateway.Read("fetch all", table, err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM rows WHERE tbl = ?"+orderBy, table)
	if err != nil {
		return nil, gateway.Read("fetch all", table, err)
	}
	out, err := scanRows(rows)
	return out, gateway.Read("fetch all", table, err)
}

// FetchPage returns one page of the filtered, ordered rows and the filtered count.
func (s *Store) FetchPage(ctx context.Context, table string, filter gateway.Filter, order domain.Order, offset, limit int) ([]gateway.Row, int, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}
	orderBy, err := orderClause(order)
	if err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}
	args = append([]any{table}, args...)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM rows"+where, args...).Scan(&total); err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	pageArgs := append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM rows"+where+orderBy+" LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}
	return out, total, nil
}

// Insert stores a new row, assigning id and timestamps when absent.
func (s *Store) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	r := gateway.Row{}
	for k, v := range row {
		r[k] = v
	}
	now := gateway.Timestamp(s.now())
	if r.ID() == "" {
		r["id"] = uuid.NewString()
	}
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = now
	}
	if _, ok := r["updated_at"]; !ok {
		r["updated_at"] = now
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, gateway.Write("insert", table, "", err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO rows (tbl, id, data) VALUES (?, ?, ?)", table, r.ID(), string(data)); err != nil {
		return nil, gateway.Write("insert", table, "", err)
	}
	s.publish(ctx, table)
	return r, nil
}

// Update merges patch into the stored document.
func (s *Store) Update(ctx context.Context, table, id string, patch gateway.Row) error {
	p := gateway.Row{}
	for k, v := range patch {
		p[k] = v
	}
	delete(p, "id")
	if _, ok := p["updated_at"]; !ok {
		p["updated_at"] = gateway.Timestamp(s.now())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return gateway.Write("update", table, id, err)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE rows SET data = json_patch(data, ?) WHERE tbl = ? AND id = ?", string(data), table, id)
	if err := affected(res, err); err != nil {
		return gateway.Write("update", table, id, err)
	}
	s.publish(ctx, table)
	return nil
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rows WHERE tbl = ? AND id = ?", table, id)
	if err := affected(res, err); err != nil {
		return gateway.Write("delete", table, id, err)
	}
	s.publish(ctx, table)
	return nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrRowNotFound
	}
	return nil
}

func (s *Store) publish(ctx context.Context, table string) {
	// A lost signal only delays reconciliation until the next write.
	if s.pub != nil {
		_ = s.pub.Publish(ctx, table)
	}
}
