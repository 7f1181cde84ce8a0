package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/policypulse/billsync/internal/bill"
	"github.com/policypulse/billsync/internal/db"
)

// providerIDChunkSize bounds bulk provider-id membership queries.
const providerIDChunkSize = 500

// secondaryUniqueConstraint is the storage-enforced uniqueness of
// (jurisdiction, session_year, bill_number, chamber). An insert losing
// a race on it is a benign duplicate, not an error.
const secondaryUniqueConstraint = "bills_jurisdiction_session_year_bill_number_chamber_key"

// Postgres implements Store using pgx.
type Postgres struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a Postgres store with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bills (
	id              TEXT PRIMARY KEY,
	external_id     TEXT NOT NULL UNIQUE,
	provider_id     BIGINT,
	jurisdiction    TEXT NOT NULL,
	session_year    INTEGER NOT NULL,
	bill_number     TEXT NOT NULL,
	chamber         TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	summary         TEXT,
	canonical_url   TEXT,
	provider_url    TEXT,
	version_date    DATE,
	relevance_score INTEGER,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT bills_jurisdiction_session_year_bill_number_chamber_key
		UNIQUE (jurisdiction, session_year, bill_number, chamber)
);

CREATE INDEX IF NOT EXISTS idx_bills_provider_id ON bills(provider_id);
CREATE INDEX IF NOT EXISTS idx_bills_jurisdiction_number ON bills(jurisdiction, bill_number);
CREATE INDEX IF NOT EXISTS idx_bills_updated_at ON bills(updated_at);
`

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *Postgres) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *Postgres) LastProcessedAt(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT updated_at FROM bills ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &StorageError{Op: "last processed timestamp", Err: err}
	}
	return &t, nil
}

func (s *Postgres) ExistingKeysByJurisdictionAndNumber(ctx context.Context) (map[string][]KnownVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT jurisdiction, bill_number, external_id, version_date FROM bills`,
	)
	if err != nil {
		return nil, &StorageError{Op: "existing keys snapshot", Err: err}
	}
	defer rows.Close()

	known := make(map[string][]KnownVersion)
	for rows.Next() {
		var jurisdiction, billNumber, externalID string
		var versionDate *time.Time
		if err := rows.Scan(&jurisdiction, &billNumber, &externalID, &versionDate); err != nil {
			return nil, &StorageError{Op: "existing keys scan", Err: err}
		}
		if jurisdiction == "" || billNumber == "" {
			continue
		}
		key := jurisdiction + " " + billNumber
		known[key] = append(known[key], KnownVersion{ExternalID: externalID, VersionDate: versionDate})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "existing keys iterate", Err: err}
	}

	zap.L().Info("retrieved existing jurisdiction+number keys", zap.Int("keys", len(known)))
	return known, nil
}

func (s *Postgres) ExistingProviderIDs(ctx context.Context, ids []int) (map[int]struct{}, error) {
	existing := make(map[int]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	seen := make(map[int]struct{}, len(ids))
	deduped := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}

	for start := 0; start < len(deduped); start += providerIDChunkSize {
		end := min(start+providerIDChunkSize, len(deduped))
		chunk := deduped[start:end]

		rows, err := s.pool.Query(ctx,
			`SELECT provider_id FROM bills WHERE provider_id = ANY($1)`,
			chunk,
		)
		if err != nil {
			// A failed chunk degrades the pre-filter, it does not abort
			// the run: the affected ids are just fetched again.
			zap.L().Warn("provider id chunk lookup failed",
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			continue
		}
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, &StorageError{Op: "existing provider ids scan", Err: err}
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, &StorageError{Op: "existing provider ids iterate", Err: err}
		}
	}

	zap.L().Info("bulk provider id check",
		zap.Int("candidates", len(deduped)),
		zap.Int("already_stored", len(existing)),
	)
	return existing, nil
}

func (s *Postgres) Store(ctx context.Context, bills []bill.Bill) (int, error) {
	inserted := 0
	skipped := 0

	for i := range bills {
		b := bills[i]
		log := zap.L().With(zap.String("external_id", b.ExternalID))

		var existingID string
		var existingProviderID *int64
		err := s.pool.QueryRow(ctx,
			`SELECT id, provider_id FROM bills WHERE external_id = $1`,
			b.ExternalID,
		).Scan(&existingID, &existingProviderID)

		switch {
		case err == nil:
			if err := s.backfill(ctx, existingID, existingProviderID, b); err != nil {
				log.Warn("provider id backfill failed", zap.Error(err))
			}
			skipped++

		case errors.Is(err, pgx.ErrNoRows):
			if err := s.insert(ctx, b); err != nil {
				if isSecondaryUniqueViolation(err) {
					log.Info("skipped bill: lost duplicate-key race on jurisdiction/session/number/chamber")
					skipped++
					continue
				}
				log.Error("insert failed, dropping record", zap.Error(err))
				continue
			}
			inserted++

		default:
			log.Error("existence lookup failed, dropping record", zap.Error(err))
		}
	}

	zap.L().Info("storage complete",
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
		zap.Int("total", len(bills)),
	)
	if inserted == 0 && len(bills) > 0 {
		zap.L().Warn("processed bills but inserted none, all were already stored",
			zap.Int("total", len(bills)),
		)
	}
	return inserted, nil
}

// backfill fills provider_id (and provider_url when empty) on an
// existing row, only when provider_id is currently null. Populated
// fields are never overwritten.
func (s *Postgres) backfill(ctx context.Context, rowID string, existingProviderID *int64, b bill.Bill) error {
	if existingProviderID != nil || b.ProviderID == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE bills
		 SET provider_id = $1,
		     provider_url = COALESCE(provider_url, NULLIF($2, '')),
		     updated_at = $3
		 WHERE id = $4`,
		*b.ProviderID, b.ProviderURL, time.Now().UTC(), rowID,
	)
	if err != nil {
		return &StorageError{Op: "backfill provider id", Err: err}
	}
	return nil
}

func (s *Postgres) insert(ctx context.Context, b bill.Bill) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bills
		 (id, external_id, provider_id, jurisdiction, session_year, bill_number, chamber,
		  title, summary, canonical_url, provider_url, version_date, relevance_score,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.New().String(), b.ExternalID, b.ProviderID, b.Jurisdiction, b.SessionYear,
		b.BillNumber, string(b.Chamber), b.Title, b.Summary, b.CanonicalURL,
		b.ProviderURL, b.VersionDate, b.RelevanceScore, now, now,
	)
	if err != nil {
		return &StorageError{Op: "insert bill", Err: err}
	}
	return nil
}

func (s *Postgres) UpdateBill(ctx context.Context, id string, b bill.Bill) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bills
		 SET external_id = $1, provider_id = $2, jurisdiction = $3, session_year = $4,
		     bill_number = $5, chamber = $6, title = $7, summary = $8,
		     canonical_url = $9, provider_url = $10, version_date = $11,
		     relevance_score = $12, updated_at = $13
		 WHERE id = $14`,
		b.ExternalID, b.ProviderID, b.Jurisdiction, b.SessionYear, b.BillNumber,
		string(b.Chamber), b.Title, b.Summary, b.CanonicalURL, b.ProviderURL,
		b.VersionDate, b.RelevanceScore, time.Now().UTC(), id,
	)
	if err != nil {
		return &StorageError{Op: "update bill", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &StorageError{Op: "update bill", Err: eris.Errorf("bill not found: %s", id)}
	}
	return nil
}

// isSecondaryUniqueViolation matches the failure signature of the
// (jurisdiction, session_year, bill_number, chamber) constraint. It
// keys on the constraint's identity, not just the generic error code.
func isSecondaryUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == secondaryUniqueConstraint
	}
	msg := err.Error()
	if !strings.Contains(msg, secondaryUniqueConstraint) {
		return false
	}
	return strings.Contains(msg, "23505") || strings.Contains(strings.ToLower(msg), "duplicate key")
}
