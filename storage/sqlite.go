package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"railgate.app/api/internal/logger"
	"railgate.app/api/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{
		db:   db,
		path: path,
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, _ := m.Version()
	logger.Debug("Database migrated", map[string]interface{}{
		"path":    s.path,
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

// withTx runs fn inside one transaction, committing only if fn succeeds.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveLead(ctx context.Context, lead *models.Lead) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO leads (id, name, email, phone, company, message, source, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			lead.ID, lead.Name, lead.Email, lead.Phone, lead.Company, lead.Message, lead.Source, lead.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save lead: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, phone, company, message, source, created_at FROM leads ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer closeRows(rows)

	leads := []*models.Lead{}
	for rows.Next() {
		var lead models.Lead
		if err := rows.Scan(&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Company, &lead.Message, &lead.Source, &lead.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, &lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", err)
	}
	return leads, nil
}

func (s *SQLiteStorage) SavePartner(ctx context.Context, partner *models.Partner) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO partners (id, name, email, company, website, partnership_type, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			partner.ID, partner.Name, partner.Email, partner.Company, partner.Website, partner.PartnershipType, partner.Message, partner.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save partner: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) ListPartners(ctx context.Context) ([]*models.Partner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, company, website, partnership_type, message, created_at FROM partners ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer closeRows(rows)

	partners := []*models.Partner{}
	for rows.Next() {
		var p models.Partner
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Company, &p.Website, &p.PartnershipType, &p.Message, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		partners = append(partners, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partners: %w", err)
	}
	return partners, nil
}

const contributorColumns = `id, name, email, phone, company, website,
	track, primary_role, region, comp_plan, alignment, authority, lane, position_interest,
	assets, capacity, message,
	fit_problem, fit_customers, fit_pipeline, fit_timeline, fit_budget, fit_proof, fit_team, fit_constraints,
	score, rail, status, created_at`

func (s *SQLiteStorage) SaveContributor(ctx context.Context, c *models.Contributor) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO contributors (`+contributorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Email, c.Phone, c.Company, c.Website,
			c.Track, c.PrimaryRole, c.Region, c.CompPlan, c.Alignment, c.Authority, c.Lane, c.PositionInterest,
			c.Assets, c.Capacity, c.Message,
			c.Problem, c.Customers, c.Pipeline, c.Timeline, c.Budget, c.Proof, c.Team, c.Constraints,
			c.Score, c.Rail, c.Status, c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save contributor: %w", err)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContributor(row scanner) (*models.Contributor, error) {
	var c models.Contributor
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Website,
		&c.Track, &c.PrimaryRole, &c.Region, &c.CompPlan, &c.Alignment, &c.Authority, &c.Lane, &c.PositionInterest,
		&c.Assets, &c.Capacity, &c.Message,
		&c.Problem, &c.Customers, &c.Pipeline, &c.Timeline, &c.Budget, &c.Proof, &c.Team, &c.Constraints,
		&c.Score, &c.Rail, &c.Status, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStorage) GetContributor(ctx context.Context, id string) (*models.Contributor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contributorColumns+` FROM contributors WHERE id = ?`, id)

	c, err := scanContributor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStorage) ListContributors(ctx context.Context) ([]*models.Contributor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contributorColumns+` FROM contributors ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributors: %w", err)
	}
	defer closeRows(rows)

	contributors := []*models.Contributor{}
	for rows.Next() {
		c, err := scanContributor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contributor: %w", err)
		}
		contributors = append(contributors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributors: %w", err)
	}
	return contributors, nil
}

func (s *SQLiteStorage) UpdateContributorStatus(ctx context.Context, id, status string) (bool, error) {
	var updated bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE contributors SET status = ? WHERE id = ?`, status, id)
		if err != nil {
			return fmt.Errorf("failed to update contributor status: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		updated = n > 0
		return nil
	})
	return updated, err
}

func (s *SQLiteStorage) SaveIntake(ctx context.Context, intake *models.Intake) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO intakes (id, email, role, context, narrative, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			intake.ID, intake.Email, intake.Role, intake.Context, intake.Narrative, intake.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save intake: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) ListIntakes(ctx context.Context) ([]*models.Intake, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, role, context, narrative, created_at FROM intakes ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query intakes: %w", err)
	}
	defer closeRows(rows)

	intakes := []*models.Intake{}
	for rows.Next() {
		var in models.Intake
		if err := rows.Scan(&in.ID, &in.Email, &in.Role, &in.Context, &in.Narrative, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan intake: %w", err)
		}
		intakes = append(intakes, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intakes: %w", err)
	}
	return intakes, nil
}

// UpsertGrant inserts or refreshes the grant for grant.Email. Empty refs never
// overwrite stored ones and created_at is kept from the first insert.
func (s *SQLiteStorage) UpsertGrant(ctx context.Context, grant *models.AccessGrant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_grants (email, status, customer_ref, subscription_ref, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET
				status = excluded.status,
				customer_ref = CASE WHEN excluded.customer_ref <> '' THEN excluded.customer_ref ELSE access_grants.customer_ref END,
				subscription_ref = CASE WHEN excluded.subscription_ref <> '' THEN excluded.subscription_ref ELSE access_grants.subscription_ref END,
				updated_at = excluded.updated_at`,
			grant.Email, grant.Status, grant.CustomerRef, grant.SubscriptionRef, grant.CreatedAt.UTC(), grant.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("error upserting grant: %w", err)
		}
		return nil
	})
}

const grantColumns = `email, status, customer_ref, subscription_ref, created_at, updated_at`

func (s *SQLiteStorage) FindGrantByEmail(ctx context.Context, email string) (*models.AccessGrant, error) {
	var g models.AccessGrant
	err := s.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE email = ?`, email).Scan(
		&g.Email, &g.Status, &g.CustomerRef, &g.SubscriptionRef, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SQLiteStorage) CancelGrantsBySubscription(ctx context.Context, subscriptionRef string, at time.Time) (int, error) {
	if subscriptionRef == "" {
		return 0, nil
	}
	return s.cancelWhere(ctx, "subscription_ref = ?", subscriptionRef, at)
}

func (s *SQLiteStorage) CancelGrantsByCustomer(ctx context.Context, customerRef string, at time.Time) (int, error) {
	if customerRef == "" {
		return 0, nil
	}
	return s.cancelWhere(ctx, "customer_ref = ? AND subscription_ref = ''", customerRef, at)
}

// cancelWhere is only called with the fixed conditions above.
func (s *SQLiteStorage) cancelWhere(ctx context.Context, cond, ref string, at time.Time) (int, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE access_grants SET status = ?, updated_at = ? WHERE `+cond,
			models.GrantCanceled, at.UTC(), ref,
		)
		if err != nil {
			return fmt.Errorf("error canceling grant: %w", err)
		}
		n, err = result.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *SQLiteStorage) ListGrants(ctx context.Context) ([]*models.AccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+grantColumns+` FROM access_grants ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer closeRows(rows)

	grants := []*models.AccessGrant{}
	for rows.Next() {
		var g models.AccessGrant
		if err := rows.Scan(&g.Email, &g.Status, &g.CustomerRef, &g.SubscriptionRef, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}
	return grants, nil
}

func (s *SQLiteStorage) SaveToken(ctx context.Context, token *models.AccessToken) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO access_tokens (id, email, digest, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			token.ID, token.Email, token.Digest, token.ExpiresAt.UTC(), token.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) FindLatestTokenByDigest(ctx context.Context, digest string) (*models.AccessToken, error) {
	var (
		t      models.AccessToken
		usedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, digest, expires_at, created_at, used_at
		FROM access_tokens
		WHERE digest = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, digest,
	).Scan(&t.ID, &t.Email, &t.Digest, &t.ExpiresAt, &t.CreatedAt, &usedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

func (s *SQLiteStorage) MarkTokenUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE access_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`, at.UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to mark token used: %w", err)
		}
		n, err = result.RowsAffected()
		return err
	})
	return n == 1, err
}

func (s *SQLiteStorage) MarkCheckoutProcessed(ctx context.Context, sessionID, email string, at time.Time) (bool, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO checkout_sessions (id, email, processed_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			sessionID, email, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("error recording checkout session: %w", err)
		}
		n, err = result.RowsAffected()
		return err
	})
	return n == 1, err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.Warn("Failed to close rows", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

var _ Storage = (*SQLiteStorage)(nil)
