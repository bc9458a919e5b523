// Package sqlite persists users, houses and house document registrations.
//
// The retrieval index is never stored here; house scopes are rebuilt from
// the registered files on demand.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"rentbot/internal/domain"
	"rentbot/internal/registry/sqlite/migrations"
)

var _ domain.Registry = (*Store)(nil)

// Store is a SQLite-backed registry.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at dbPath and applies migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps in-memory databases and pragmas consistent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: dbPath, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Users ====================

// EnsureUser returns the id of username, creating the user if missing.
func (s *Store) EnsureUser(ctx context.Context, username string, role domain.Role, tenantHouseID int64) (int64, error) {
	if username == "" || (role != domain.RoleTenant && role != domain.RoleLandlord) {
		return 0, domain.ErrInvalidInput
	}
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up user: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, role, tenant_house_id, created_at) VALUES (?, ?, ?, ?)",
		username, string(role), nullableID(tenantHouseID), formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return res.LastInsertId()
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var (
		u       domain.User
		role    string
		houseID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, role, tenant_house_id FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Username, &role, &houseID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("getting user: %w", err)
	}
	u.Role = domain.Role(role)
	u.TenantHouseID = houseID.Int64
	return u, nil
}

// FindUser returns the user registered under username.
func (s *Store) FindUser(ctx context.Context, username string) (domain.User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("finding user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// ==================== Houses ====================

// CreateHouse stores a new house for a landlord and returns its id.
func (s *Store) CreateHouse(ctx context.Context, landlordID int64, name, address string) (int64, error) {
	if name == "" {
		return 0, domain.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO houses (landlord_id, house_name, address, created_at) VALUES (?, ?, ?, ?)",
		landlordID, name, address, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("inserting house: %w", err)
	}
	return res.LastInsertId()
}

// ListHouses returns a landlord's houses, newest first.
func (s *Store) ListHouses(ctx context.Context, landlordID int64) ([]domain.House, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, landlord_id, house_name, address, created_at FROM houses WHERE landlord_id = ? ORDER BY created_at DESC, id DESC",
		landlordID)
	if err != nil {
		return nil, fmt.Errorf("listing houses: %w", err)
	}
	defer rows.Close()

	var houses []domain.House
	for rows.Next() {
		var (
			h       domain.House
			created string
		)
		if err := rows.Scan(&h.ID, &h.LandlordID, &h.Name, &h.Address, &created); err != nil {
			return nil, fmt.Errorf("scanning house: %w", err)
		}
		h.CreatedAt = parseTime(created)
		houses = append(houses, h)
	}
	return houses, rows.Err()
}

// ==================== Documents ====================

// RegisterDocument records a stored source file for a house.
func (s *Store) RegisterDocument(ctx context.Context, reg domain.Registration) (int64, error) {
	if reg.HouseID == 0 || reg.StoragePath == "" {
		return 0, domain.ErrInvalidInput
	}
	if reg.UploadedAt.IsZero() {
		reg.UploadedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO house_documents (house_id, file_path, content_hash, uploaded_at) VALUES (?, ?, ?, ?)",
		reg.HouseID, reg.StoragePath, reg.ContentHash, formatTime(reg.UploadedAt))
	if err != nil {
		return 0, fmt.Errorf("registering document: %w", err)
	}
	return res.LastInsertId()
}

// ListDocuments returns the registrations of a house in upload order.
func (s *Store) ListDocuments(ctx context.Context, houseID int64) ([]domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, house_id, file_path, content_hash, uploaded_at FROM house_documents WHERE house_id = ? ORDER BY id",
		houseID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var (
			r        domain.Registration
			uploaded string
		)
		if err := rows.Scan(&r.ID, &r.HouseID, &r.StoragePath, &r.ContentHash, &uploaded); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		r.UploadedAt = parseTime(uploaded)
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// HasDocuments reports whether a house has at least one registered document.
func (s *Store) HasDocuments(ctx context.Context, houseID int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM house_documents WHERE house_id = ?", houseID).Scan(&n); err != nil {
		return false, fmt.Errorf("counting documents: %w", err)
	}
	return n > 0, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
