package invite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tapglue/nexus/platform/flake"
	"github.com/tapglue/nexus/platform/pg"
)

// retryBudget bounds the optimistic retries of the issuance and redemption
// transactions, exhausting it surfaces as ErrContention instead of livelock.
const retryBudget = 3

const (
	pgInsertInvite = `INSERT INTO
		%s.invites(code, id, issuer_id, created_at, expires_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6)`
	pgRedeemInvite = `
		UPDATE
			%s.invites
		SET
			redeemed_by = $2,
			redeemed_at = $3,
			updated_at = $3
		WHERE
			code = $1
			AND redeemed_by IS NULL`

	pgSelectInvite = `
		SELECT
			code, id, issuer_id, redeemed_by, created_at, expires_at, redeemed_at, updated_at
		FROM
			%s.invites
		WHERE
			code = $1`
	pgSelectQuota = `
		SELECT
			invites_available
		FROM
			%s.issuers
		WHERE
			id = $1`
	pgConsumeQuota = `
		UPDATE
			%s.issuers
		SET
			invites_available = $2,
			updated_at = $3
		WHERE
			id = $1`

	pgClauseBefore    = `created_at < ?`
	pgClauseCodes     = `code IN (?)`
	pgClauseIDs       = `id IN (?)`
	pgClauseIssuerIDs = `issuer_id IN (?)`
	pgClauseUsed      = `redeemed_by IS NOT NULL`
	pgClauseUnused    = `redeemed_by IS NULL`

	pgCountInvites = `SELECT count(*) FROM %s.invites %s`
	pgListInvites  = `
		SELECT
			code, id, issuer_id, redeemed_by, created_at, expires_at, redeemed_at, updated_at
		FROM
			%s.invites
		%s`

	pgOrderCreatedAt = `ORDER BY created_at DESC`

	pgCreateScheme = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.invites(
		code TEXT NOT NULL UNIQUE,
		id BIGINT NOT NULL UNIQUE,
		issuer_id BIGINT NOT NULL,
		redeemed_by BIGINT,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		redeemed_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.invites`

	pgIndexIssuerCreated = `CREATE INDEX %s ON %s.invites (issuer_id, created_at DESC)`
)

type pgService struct {
	db   *sqlx.DB
	mode ConsumeMode
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB, mode ConsumeMode) Service {
	return &pgService{
		db:   db,
		mode: mode,
	}
}

func (s *pgService) Count(ns string, opts QueryOptions) (int, error) {
	where, params, err := convertOpts(opts)
	if err != nil {
		return 0, err
	}

	var (
		count int
		query = fmt.Sprintf(pgCountInvites, ns, where)
	)

	err = s.db.Get(&count, query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return 0, err
			}

			err = s.db.Get(&count, query, params...)
		}

		if err != nil {
			return 0, err
		}
	}

	return count, nil
}

func (s *pgService) Issue(ns string, issuance *Issuance) (*Invite, error) {
	if err := issuance.Validate(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < retryBudget; attempt++ {
		i, err := s.issue(ns, issuance)
		if err == nil {
			return i, nil
		}

		switch wrapped := pg.WrapError(err); {
		case pg.IsRelationNotFound(wrapped):
			if err := s.Setup(ns); err != nil {
				return nil, err
			}
		case pg.IsConflict(wrapped):
			// Conflicting concurrent transaction, the whole unit is retried
			// from a fresh quota read.
		case pg.IsUniqueViolation(wrapped):
			// Candidate code collided, the retry generates a fresh one.
		case pg.IsUnavailable(wrapped):
			return nil, wrapError(ErrUnavailable, "issue for issuer (%d)", issuance.IssuerID)
		default:
			return nil, err
		}
	}

	return nil, wrapError(ErrContention, "issue for issuer (%d)", issuance.IssuerID)
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	where, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	where = fmt.Sprintf("%s\n%s", where, pgOrderCreatedAt)

	if opts.Limit > 0 {
		where = fmt.Sprintf("%s\nLIMIT %d", where, opts.Limit)
	}

	return s.listInvites(ns, where, params...)
}

func (s *pgService) Redeem(ns, code string, accountID uint64) (*Invite, error) {
	if accountID == 0 {
		return nil, wrapError(ErrInvalidRedemption, "account id must be set")
	}

	for attempt := 0; attempt < retryBudget; attempt++ {
		i, err := s.redeem(ns, code, accountID)
		if err == nil {
			return i, nil
		}

		switch wrapped := pg.WrapError(err); {
		case pg.IsRelationNotFound(wrapped):
			if err := s.Setup(ns); err != nil {
				return nil, err
			}
		case pg.IsConflict(wrapped):
			// Lost the race for the row, the re-read classifies the outcome.
		case pg.IsUnavailable(wrapped):
			return nil, wrapError(ErrUnavailable, "redeem of '%s'", code)
		default:
			return nil, err
		}
	}

	return nil, wrapError(ErrContention, "redeem of '%s'", code)
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateScheme, ns),
		fmt.Sprintf(pgCreateTable, ns),
		pg.GuardIndex(ns, "invites_issuer_created", pgIndexIssuerCreated),
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("setup '%s': %s", q, err)
		}
	}

	return nil
}

func (s *pgService) Teardown(ns string) error {
	qs := []string{
		fmt.Sprintf(pgDropTable, ns),
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("teardown '%s': %s", q, err)
		}
	}

	return nil
}

// issue executes one attempt of the issuance unit, quota settlement and
// invite creation commit together or not at all.
func (s *pgService) issue(ns string, issuance *Issuance) (*Invite, error) {
	ts, err := time.Parse(pg.TimeFormat, time.Now().UTC().Format(pg.TimeFormat))
	if err != nil {
		return nil, err
	}

	lifetime := issuance.Lifetime
	if lifetime == 0 {
		lifetime = DefaultLifetime
	}

	id, err := flake.NextID(flake.Namespace(ns, entity))
	if err != nil {
		return nil, err
	}

	invite := &Invite{
		Code:      GenerateCode(),
		ID:        id,
		IssuerID:  issuance.IssuerID,
		CreatedAt: ts,
		ExpiresAt: ts.Add(lifetime),
		UpdatedAt: ts,
	}

	tx, err := s.db.BeginTxx(context.Background(), &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return nil, err
	}

	if !issuance.Privileged {
		var quota int

		// The quota is re-read inside the transaction, a value cached outside
		// of it would race concurrent issuance.
		err := tx.Get(&quota, fmt.Sprintf(pgSelectQuota, ns), issuance.IssuerID)
		if err != nil {
			tx.Rollback()

			if err == sql.ErrNoRows {
				return nil, wrapError(ErrInvalidIssuance, "unknown issuer (%d)", issuance.IssuerID)
			}

			return nil, err
		}

		if quota <= 0 {
			tx.Rollback()

			return nil, wrapError(ErrQuotaExhausted, "issuer (%d)", issuance.IssuerID)
		}

		remaining := 0

		if s.mode == ConsumeSingle {
			remaining = quota - 1
		}

		_, err = tx.Exec(
			fmt.Sprintf(pgConsumeQuota, ns),
			issuance.IssuerID,
			remaining,
			ts,
		)
		if err != nil {
			tx.Rollback()

			return nil, err
		}
	}

	_, err = tx.Exec(
		fmt.Sprintf(pgInsertInvite, ns),
		invite.Code,
		invite.ID,
		invite.IssuerID,
		invite.CreatedAt,
		invite.ExpiresAt,
		invite.UpdatedAt,
	)
	if err != nil {
		tx.Rollback()

		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return invite, nil
}

// redeem executes one attempt of the redemption unit, the conditional update
// guarantees at most one winner per code.
func (s *pgService) redeem(ns, code string, accountID uint64) (*Invite, error) {
	ts, err := time.Parse(pg.TimeFormat, time.Now().UTC().Format(pg.TimeFormat))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(context.Background(), &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return nil, err
	}

	invite, err := scanInvite(tx.QueryRowx(fmt.Sprintf(pgSelectInvite, ns), code))
	if err != nil {
		tx.Rollback()

		if err == sql.ErrNoRows {
			return nil, wrapError(ErrNotFound, "invite '%s'", code)
		}

		return nil, err
	}

	if invite.State() == StateUsed {
		tx.Rollback()

		return nil, wrapError(ErrAlreadyUsed, "invite '%s'", code)
	}

	if invite.ExpiredAt(ts) {
		tx.Rollback()

		return nil, wrapError(ErrExpired, "invite '%s'", code)
	}

	res, err := tx.Exec(fmt.Sprintf(pgRedeemInvite, ns), code, accountID, ts)
	if err != nil {
		tx.Rollback()

		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()

		return nil, err
	}

	if affected == 0 {
		tx.Rollback()

		return nil, pg.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	invite.RedeemedBy = accountID
	invite.RedeemedAt = ts
	invite.UpdatedAt = ts

	return invite, nil
}

func (s *pgService) listInvites(
	ns, where string,
	params ...interface{},
) (List, error) {
	query := fmt.Sprintf(pgListInvites, ns, where)

	rows, err := s.db.Queryx(query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			return s.listInvites(ns, where, params...)
		}

		return nil, err
	}
	defer rows.Close()

	is := List{}

	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}

		is = append(is, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return is, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvite(row rowScanner) (*Invite, error) {
	var (
		invite = &Invite{}

		redeemedAt sql.NullTime
		redeemedBy sql.NullInt64
	)

	err := row.Scan(
		&invite.Code,
		&invite.ID,
		&invite.IssuerID,
		&redeemedBy,
		&invite.CreatedAt,
		&invite.ExpiresAt,
		&redeemedAt,
		&invite.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if redeemedBy.Valid {
		invite.RedeemedBy = uint64(redeemedBy.Int64)
	}

	if redeemedAt.Valid {
		invite.RedeemedAt = redeemedAt.Time.UTC()
	}

	invite.CreatedAt = invite.CreatedAt.UTC()
	invite.ExpiresAt = invite.ExpiresAt.UTC()
	invite.UpdatedAt = invite.UpdatedAt.UTC()

	return invite, nil
}

func convertOpts(opts QueryOptions) (string, []interface{}, error) {
	var (
		clauses = []string{}
		params  = []interface{}{}
	)

	if !opts.Before.IsZero() {
		clauses = append(clauses, pgClauseBefore)
		params = append(params, opts.Before.UTC().Format(pg.TimeFormat))
	}

	if len(opts.Codes) > 0 {
		ps := []interface{}{}

		for _, c := range opts.Codes {
			ps = append(ps, c)
		}

		clause, _, err := sqlx.In(pgClauseCodes, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if len(opts.IDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.IDs {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseIDs, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if len(opts.IssuerIDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.IssuerIDs {
			ps = append(ps, id)
		}

		clause, _, err := sqlx.In(pgClauseIssuerIDs, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	if opts.Used != nil {
		if *opts.Used {
			clauses = append(clauses, pgClauseUsed)
		} else {
			clauses = append(clauses, pgClauseUnused)
		}
	}

	where := ""

	if len(clauses) > 0 {
		where = sqlx.Rebind(sqlx.DOLLAR, pg.ClausesToWhere(clauses...))
	}

	return where, params, nil
}
