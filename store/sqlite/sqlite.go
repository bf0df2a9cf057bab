/*
Package sqlite provides durable SQLite-backed implementations of the
parking store contracts.

SCHEMA:
  offers: id, resource, owner, start_time, end_time, created_at
  claims: id, resource, claimer, owner, offer_id, slot, start_time,
          end_time, created_at

  Times are TEXT in RFC 3339 normalized to UTC, so the expiry filters in
  SQL compare lexically even across DST offset changes; rows are
  localized back to the building's timezone on scan. The half-open
  overlap predicate is evaluated on parsed values in Go.

WAL MODE:
  Opened with WAL so readers do not block the single writer.

USAGE:
  st, err := sqlite.Open("./felipe.db", loc)
  if err != nil { ... }
  defer st.Close()
  engine := parking.NewEngine(layout, st.Offers(), st.Claims(), clock)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/johnfabrycky/felipe/parking"
)

// Store owns the database handle and hands out the two typed stores.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database. Returned times are localized
// to loc.
func Open(path string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Offers returns the offer store view.
func (s *Store) Offers() *OfferStore { return &OfferStore{s} }

// Claims returns the claim store view.
func (s *Store) Claims() *ClaimStore { return &ClaimStore{s} }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		resource INTEGER NOT NULL,
		owner TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offers_resource ON offers(resource);
	CREATE INDEX IF NOT EXISTS idx_offers_owner ON offers(owner);
	CREATE INDEX IF NOT EXISTS idx_offers_end ON offers(end_time);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		resource INTEGER NOT NULL,
		claimer TEXT NOT NULL,
		owner TEXT NOT NULL,
		offer_id TEXT,
		slot INTEGER NOT NULL DEFAULT 0,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_claims_resource ON claims(resource);
	CREATE INDEX IF NOT EXISTS idx_claims_claimer ON claims(claimer);
	CREATE INDEX IF NOT EXISTS idx_claims_offer ON claims(offer_id) WHERE offer_id != '';
	CREATE INDEX IF NOT EXISTS idx_claims_end ON claims(end_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) encode(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func (s *Store) decode(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.loc), nil
}

// =============================================================================
// OFFER STORE
// =============================================================================

type OfferStore struct {
	s *Store
}

func (st *OfferStore) Insert(ctx context.Context, o parking.Offer) error {
	_, err := st.s.db.ExecContext(ctx,
		`INSERT INTO offers (id, resource, owner, start_time, end_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(o.ID), int(o.Resource), string(o.Owner),
		st.s.encode(o.Window.Start), st.s.encode(o.Window.End), st.s.encode(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (st *OfferStore) InsertBatch(ctx context.Context, offers []parking.Offer) error {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, o := range offers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO offers (id, resource, owner, start_time, end_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			string(o.ID), int(o.Resource), string(o.Owner),
			st.s.encode(o.Window.Start), st.s.encode(o.Window.End), st.s.encode(o.CreatedAt)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert offer batch: %w", err)
		}
	}
	return tx.Commit()
}

func (st *OfferStore) Get(ctx context.Context, id parking.OfferID) (parking.Offer, bool, error) {
	row := st.s.db.QueryRowContext(ctx,
		`SELECT id, resource, owner, start_time, end_time, created_at FROM offers WHERE id = ?`, string(id))
	o, err := st.scan(row)
	if err == sql.ErrNoRows {
		return parking.Offer{}, false, nil
	}
	if err != nil {
		return parking.Offer{}, false, fmt.Errorf("get offer: %w", err)
	}
	return o, true, nil
}

func (st *OfferStore) Overlapping(ctx context.Context, resource parking.ResourceID, w parking.Window, asOf time.Time) ([]parking.Offer, error) {
	offers, err := st.query(ctx,
		`SELECT id, resource, owner, start_time, end_time, created_at FROM offers
		 WHERE resource = ? AND end_time > ? ORDER BY start_time, created_at`,
		int(resource), st.s.encode(asOf))
	if err != nil {
		return nil, err
	}
	out := offers[:0]
	for _, o := range offers {
		if o.Window.Overlaps(w) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (st *OfferStore) ByResource(ctx context.Context, resource parking.ResourceID, asOf time.Time) ([]parking.Offer, error) {
	return st.query(ctx,
		`SELECT id, resource, owner, start_time, end_time, created_at FROM offers
		 WHERE resource = ? AND end_time > ? ORDER BY start_time, created_at`,
		int(resource), st.s.encode(asOf))
}

func (st *OfferStore) ByOwner(ctx context.Context, owner parking.UserID, asOf time.Time) ([]parking.Offer, error) {
	return st.query(ctx,
		`SELECT id, resource, owner, start_time, end_time, created_at FROM offers
		 WHERE owner = ? AND end_time > ? ORDER BY start_time, created_at`,
		string(owner), st.s.encode(asOf))
}

func (st *OfferStore) Resources(ctx context.Context, asOf time.Time) ([]parking.ResourceID, error) {
	rows, err := st.s.db.QueryContext(ctx,
		`SELECT DISTINCT resource FROM offers WHERE end_time > ? ORDER BY resource`, st.s.encode(asOf))
	if err != nil {
		return nil, fmt.Errorf("query offer resources: %w", err)
	}
	defer rows.Close()
	var out []parking.ResourceID
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, parking.ResourceID(id))
	}
	return out, rows.Err()
}

func (st *OfferStore) Delete(ctx context.Context, id parking.OfferID) error {
	if _, err := st.s.db.ExecContext(ctx, `DELETE FROM offers WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return nil
}

func (st *OfferStore) DeleteExpired(ctx context.Context, asOf time.Time) (int, error) {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM offers WHERE end_time <= ?`, st.s.encode(asOf))
	if err != nil {
		return 0, fmt.Errorf("delete expired offers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (st *OfferStore) scan(r rowScanner) (parking.Offer, error) {
	var (
		id, owner           string
		resource            int
		start, end, created string
	)
	if err := r.Scan(&id, &resource, &owner, &start, &end, &created); err != nil {
		return parking.Offer{}, err
	}
	startT, err := st.s.decode(start)
	if err != nil {
		return parking.Offer{}, err
	}
	endT, err := st.s.decode(end)
	if err != nil {
		return parking.Offer{}, err
	}
	createdT, err := st.s.decode(created)
	if err != nil {
		return parking.Offer{}, err
	}
	return parking.Offer{
		ID:        parking.OfferID(id),
		Resource:  parking.ResourceID(resource),
		Owner:     parking.UserID(owner),
		Window:    parking.Window{Start: startT, End: endT},
		CreatedAt: createdT,
	}, nil
}

func (st *OfferStore) query(ctx context.Context, q string, args ...any) ([]parking.Offer, error) {
	rows, err := st.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()
	var out []parking.Offer
	for rows.Next() {
		o, err := st.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// =============================================================================
// CLAIM STORE
// =============================================================================

type ClaimStore struct {
	s *Store
}

const claimCols = `id, resource, claimer, owner, offer_id, slot, start_time, end_time, created_at`

func (st *ClaimStore) Insert(ctx context.Context, c parking.Claim) error {
	_, err := st.s.db.ExecContext(ctx,
		`INSERT INTO claims (`+claimCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), int(c.Resource), string(c.Claimer), string(c.Owner), string(c.OfferID), c.Slot,
		st.s.encode(c.Window.Start), st.s.encode(c.Window.End), st.s.encode(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (st *ClaimStore) Get(ctx context.Context, id parking.ClaimID) (parking.Claim, bool, error) {
	row := st.s.db.QueryRowContext(ctx,
		`SELECT `+claimCols+` FROM claims WHERE id = ?`, string(id))
	c, err := st.scan(row)
	if err == sql.ErrNoRows {
		return parking.Claim{}, false, nil
	}
	if err != nil {
		return parking.Claim{}, false, fmt.Errorf("get claim: %w", err)
	}
	return c, true, nil
}

func (st *ClaimStore) Overlapping(ctx context.Context, resource parking.ResourceID, w parking.Window, asOf time.Time) ([]parking.Claim, error) {
	claims, err := st.query(ctx,
		`SELECT `+claimCols+` FROM claims WHERE resource = ? AND end_time > ? ORDER BY start_time`,
		int(resource), st.s.encode(asOf))
	if err != nil {
		return nil, err
	}
	out := claims[:0]
	for _, c := range claims {
		if c.Window.Overlaps(w) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (st *ClaimStore) ByResource(ctx context.Context, resource parking.ResourceID, asOf time.Time) ([]parking.Claim, error) {
	return st.query(ctx,
		`SELECT `+claimCols+` FROM claims WHERE resource = ? AND end_time > ? ORDER BY start_time`,
		int(resource), st.s.encode(asOf))
}

func (st *ClaimStore) ByClaimer(ctx context.Context, claimer parking.UserID, asOf time.Time) ([]parking.Claim, error) {
	return st.query(ctx,
		`SELECT `+claimCols+` FROM claims WHERE claimer = ? AND end_time > ? ORDER BY start_time`,
		string(claimer), st.s.encode(asOf))
}

func (st *ClaimStore) ByOffer(ctx context.Context, offer parking.OfferID) ([]parking.Claim, error) {
	return st.query(ctx,
		`SELECT `+claimCols+` FROM claims WHERE offer_id = ? ORDER BY start_time`, string(offer))
}

func (st *ClaimStore) Delete(ctx context.Context, id parking.ClaimID) error {
	if _, err := st.s.db.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	return nil
}

func (st *ClaimStore) DeleteByOffer(ctx context.Context, offer parking.OfferID) (int, error) {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM claims WHERE offer_id = ?`, string(offer))
	if err != nil {
		return 0, fmt.Errorf("delete claims by offer: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (st *ClaimStore) DeleteExpired(ctx context.Context, asOf time.Time) (int, error) {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM claims WHERE end_time <= ?`, st.s.encode(asOf))
	if err != nil {
		return 0, fmt.Errorf("delete expired claims: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (st *ClaimStore) scan(r rowScanner) (parking.Claim, error) {
	var (
		id, claimer, owner, offerID string
		resource, slot              int
		start, end, created         string
	)
	if err := r.Scan(&id, &resource, &claimer, &owner, &offerID, &slot, &start, &end, &created); err != nil {
		return parking.Claim{}, err
	}
	startT, err := st.s.decode(start)
	if err != nil {
		return parking.Claim{}, err
	}
	endT, err := st.s.decode(end)
	if err != nil {
		return parking.Claim{}, err
	}
	createdT, err := st.s.decode(created)
	if err != nil {
		return parking.Claim{}, err
	}
	return parking.Claim{
		ID:        parking.ClaimID(id),
		Resource:  parking.ResourceID(resource),
		Claimer:   parking.UserID(claimer),
		Owner:     parking.UserID(owner),
		OfferID:   parking.OfferID(offerID),
		Slot:      slot,
		Window:    parking.Window{Start: startT, End: endT},
		CreatedAt: createdT,
	}, nil
}

func (st *ClaimStore) query(ctx context.Context, q string, args ...any) ([]parking.Claim, error) {
	rows, err := st.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()
	var out []parking.Claim
	for rows.Next() {
		c, err := st.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
