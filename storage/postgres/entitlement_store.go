package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntitlementStore persists entitlement records in <schema>.entitlements.
type EntitlementStore struct {
	pg     *pgxpool.Pool
	schema string
}

var _ entitlements.Store = (*EntitlementStore)(nil)

func NewEntitlementStore(pg *pgxpool.Pool, schema string) *EntitlementStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "billing"
	}
	return &EntitlementStore{pg: pg, schema: s}
}

func (s *EntitlementStore) table() string { return s.schema + ".entitlements" }

func (s *EntitlementStore) claimsTable() string { return s.schema + ".transaction_claims" }

const recordColumns = `user_key, plan_id, status, user_email, user_name, user_phone_raw, user_phone_normalized,
	device_fingerprint, affiliate_id, transaction_ref, start_date, end_date, last_updated`

// column maps a lookup field to its indexed column. Only whitelisted fields
// are ever interpolated into SQL.
func column(f entitlements.Field) (string, error) {
	switch f {
	case entitlements.FieldKey, entitlements.FieldEmail, entitlements.FieldPhone,
		entitlements.FieldDevice, entitlements.FieldTransaction:
		return string(f), nil
	}
	return "", fmt.Errorf("pgstore: unsupported lookup field %q", f)
}

// matchClause is the WHERE clause for an exact-match lookup on col. The
// literal non-empty predicate lets generic plans use the partial indexes.
func matchClause(col string) string {
	return col + ` = $1 AND ` + col + ` <> ''`
}

func (s *EntitlementStore) Exists(ctx context.Context, field entitlements.Field, value string) (bool, error) {
	col, err := column(field)
	if err != nil {
		return false, err
	}
	if value == "" {
		return false, nil
	}
	var found bool
	err = s.pg.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+s.table()+` WHERE `+matchClause(col)+`)`, value).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("pgstore: exists %s: %w", col, err)
	}
	return found, nil
}

func (s *EntitlementStore) Get(ctx context.Context, key string) (*entitlements.Record, error) {
	return s.Find(ctx, entitlements.FieldKey, key)
}

func (s *EntitlementStore) Find(ctx context.Context, field entitlements.Field, value string) (*entitlements.Record, error) {
	col, err := column(field)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	row := s.pg.QueryRow(ctx, `SELECT `+recordColumns+` FROM `+s.table()+` WHERE `+matchClause(col)+` ORDER BY user_key LIMIT 1`, value)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: find by %s: %w", col, err)
	}
	return &r, nil
}

// Upsert applies entitlements.Merge semantics in a single statement so the
// merge is atomic per document.
func (s *EntitlementStore) Upsert(ctx context.Context, p entitlements.Record) (entitlements.Record, error) {
	if p.Key == "" {
		return entitlements.Record{}, fmt.Errorf("pgstore: upsert without user_key")
	}
	q := `INSERT INTO ` + s.table() + ` AS e (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, ''), 'direct'), $10, $11, $12, COALESCE($13, NOW()))
ON CONFLICT (user_key) DO UPDATE SET
	plan_id               = COALESCE(NULLIF(EXCLUDED.plan_id, ''), e.plan_id),
	status                = COALESCE(NULLIF(EXCLUDED.status, ''), e.status),
	user_email            = COALESCE(NULLIF(EXCLUDED.user_email, ''), e.user_email),
	user_name             = COALESCE(NULLIF(EXCLUDED.user_name, ''), e.user_name),
	user_phone_raw        = COALESCE(NULLIF(EXCLUDED.user_phone_raw, ''), e.user_phone_raw),
	user_phone_normalized = COALESCE(NULLIF(EXCLUDED.user_phone_normalized, ''), e.user_phone_normalized),
	device_fingerprint    = COALESCE(NULLIF(EXCLUDED.device_fingerprint, ''), e.device_fingerprint),
	affiliate_id          = COALESCE(NULLIF($9, ''), e.affiliate_id),
	transaction_ref       = COALESCE(NULLIF(EXCLUDED.transaction_ref, ''), e.transaction_ref),
	start_date            = COALESCE(EXCLUDED.start_date, e.start_date),
	end_date              = COALESCE(EXCLUDED.end_date, e.end_date),
	last_updated          = EXCLUDED.last_updated
RETURNING ` + recordColumns
	row := s.pg.QueryRow(ctx, q,
		p.Key, string(p.PlanID), string(p.Status), p.UserEmail, p.UserName, p.UserPhoneRaw, p.UserPhoneNormalized,
		p.DeviceFingerprint, p.AffiliateID, p.TransactionRef, timePtr(p.StartDate), timePtr(p.EndDate), timePtr(p.LastUpdated))
	out, err := scanRecord(row)
	if err != nil {
		return entitlements.Record{}, fmt.Errorf("pgstore: upsert %s: %w", p.Key, err)
	}
	return out, nil
}

func (s *EntitlementStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]entitlements.Record, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pg.Query(ctx, `SELECT `+recordColumns+` FROM `+s.table()+`
WHERE status IN ('active', 'trialing') AND end_date <= $1 ORDER BY end_date LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list expired: %w", err)
	}
	defer rows.Close()
	var out []entitlements.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: list expired: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Expire is a conditional UPDATE: a renewal committed after ListExpired makes
// the WHERE clause miss and the record is left untouched.
func (s *EntitlementStore) Expire(ctx context.Context, key string, now time.Time) (*entitlements.Record, error) {
	row := s.pg.QueryRow(ctx, `UPDATE `+s.table()+` SET status = 'inactive', last_updated = $3
WHERE user_key = $1 AND status IN ('active', 'trialing') AND end_date <= $2
RETURNING `+recordColumns, key, now, now)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: expire %s: %w", key, err)
	}
	return &r, nil
}

// ClaimTransaction inserts the claim or, when the reference is taken, reads
// the existing row. ON CONFLICT DO NOTHING makes concurrent claims race-free.
func (s *EntitlementStore) ClaimTransaction(ctx context.Context, c entitlements.Claim) (entitlements.Claim, bool, error) {
	if c.Ref == "" || c.Key == "" {
		return entitlements.Claim{}, false, fmt.Errorf("pgstore: claim needs ref and key")
	}
	const cols = `ref, user_key, plan_id, start_date, end_date, claimed_at`
	row := s.pg.QueryRow(ctx, `INSERT INTO `+s.claimsTable()+` (`+cols+`)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
ON CONFLICT (ref) DO NOTHING
RETURNING `+cols, c.Ref, c.Key, string(c.Plan), timePtr(c.StartDate), timePtr(c.EndDate), timePtr(c.ClaimedAt))
	out, err := scanClaim(row)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return entitlements.Claim{}, false, fmt.Errorf("pgstore: claim %s: %w", c.Ref, err)
	}
	out, err = scanClaim(s.pg.QueryRow(ctx, `SELECT `+cols+` FROM `+s.claimsTable()+` WHERE ref = $1`, c.Ref))
	if err != nil {
		return entitlements.Claim{}, false, fmt.Errorf("pgstore: read claim %s: %w", c.Ref, err)
	}
	return out, false, nil
}

func scanClaim(row pgx.Row) (entitlements.Claim, error) {
	var c entitlements.Claim
	var plan string
	var start, end *time.Time
	if err := row.Scan(&c.Ref, &c.Key, &plan, &start, &end, &c.ClaimedAt); err != nil {
		return entitlements.Claim{}, err
	}
	c.Plan = entitlements.Plan(plan)
	if start != nil {
		c.StartDate = start.UTC()
	}
	if end != nil {
		c.EndDate = end.UTC()
	}
	c.ClaimedAt = c.ClaimedAt.UTC()
	return c, nil
}

func scanRecord(row pgx.Row) (entitlements.Record, error) {
	var r entitlements.Record
	var plan, status string
	var start, end *time.Time
	err := row.Scan(&r.Key, &plan, &status, &r.UserEmail, &r.UserName, &r.UserPhoneRaw, &r.UserPhoneNormalized,
		&r.DeviceFingerprint, &r.AffiliateID, &r.TransactionRef, &start, &end, &r.LastUpdated)
	if err != nil {
		return entitlements.Record{}, err
	}
	r.PlanID = entitlements.Plan(plan)
	r.Status = entitlements.Status(status)
	if start != nil {
		r.StartDate = start.UTC()
	}
	if end != nil {
		r.EndDate = end.UTC()
	}
	r.LastUpdated = r.LastUpdated.UTC()
	return r, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
