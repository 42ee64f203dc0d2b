package issuer

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tapglue/nexus/platform/flake"
	"github.com/tapglue/nexus/platform/pg"
)

const (
	pgInsertIssuer = `INSERT INTO
		%s.issuers(id, invites_available, role, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5)`
	pgUpdateIssuer = `
		UPDATE
			%s.issuers
		SET
			invites_available = $2,
			role = $3,
			updated_at = $4
		WHERE
			id = $1`
	pgUpdateQuota = `
		UPDATE
			%s.issuers
		SET
			invites_available = $2,
			updated_at = $3
		WHERE
			id = $1`

	pgSelectQuota = `
		SELECT
			invites_available
		FROM
			%s.issuers
		WHERE
			id = $1`

	pgClauseBefore = `created_at < ?`
	pgClauseIDs    = `id IN (?)`
	pgClauseRoles  = `role IN (?)`

	pgListIssuers = `
		SELECT
			id, invites_available, role, created_at, updated_at
		FROM
			%s.issuers
		%s`

	pgOrderCreatedAt = `ORDER BY created_at DESC`

	pgCreateScheme = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.issuers(
		id BIGINT NOT NULL UNIQUE,
		invites_available INT NOT NULL DEFAULT 0,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.issuers`
)

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{
		db: db,
	}
}

func (s *pgService) Put(ns string, i *Issuer) (*Issuer, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	if i.ID == 0 {
		return s.insert(ns, i)
	}

	is, err := s.Query(ns, QueryOptions{
		IDs: []uint64{
			i.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	if len(is) == 0 {
		return s.insert(ns, i)
	}

	i.CreatedAt = is[0].CreatedAt

	return s.update(ns, i)
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	where, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	return s.listIssuers(ns, where, params...)
}

func (s *pgService) Quota(ns string, id uint64) (int, error) {
	var (
		query = fmt.Sprintf(pgSelectQuota, ns)

		quota int
	)

	err := s.db.Get(&quota, query, id)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return 0, err
			}

			err = s.db.Get(&quota, query, id)
		}

		if err != nil {
			if err == sql.ErrNoRows {
				return 0, wrapError(ErrNotFound, "issuer (%d)", id)
			}

			return 0, err
		}
	}

	return quota, nil
}

func (s *pgService) SetQuota(ns string, id uint64, quota int) error {
	if quota < 0 {
		return wrapError(ErrInvalidIssuer, "invites available must not be negative")
	}

	now, err := time.Parse(pg.TimeFormat, time.Now().UTC().Format(pg.TimeFormat))
	if err != nil {
		return err
	}

	var (
		params = []interface{}{
			id,
			quota,
			now,
		}
		query = fmt.Sprintf(pgUpdateQuota, ns)
	)

	res, err := s.db.Exec(query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return err
			}

			res, err = s.db.Exec(query, params...)
		}

		if err != nil {
			return err
		}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return wrapError(ErrNotFound, "issuer (%d)", id)
	}

	return nil
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateScheme, ns),
		fmt.Sprintf(pgCreateTable, ns),
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

func (s *pgService) insert(ns string, i *Issuer) (*Issuer, error) {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}

	ts, err := time.Parse(pg.TimeFormat, i.CreatedAt.UTC().Format(pg.TimeFormat))
	if err != nil {
		return nil, err
	}

	i.CreatedAt = ts
	i.UpdatedAt = ts

	if i.ID == 0 {
		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		i.ID = id
	}

	var (
		params = []interface{}{
			i.ID,
			i.InvitesAvailable,
			i.Role,
			i.CreatedAt,
			i.UpdatedAt,
		}
		query = fmt.Sprintf(pgInsertIssuer, ns)
	)

	_, err = s.db.Exec(query, params...)
	if err != nil && pg.IsRelationNotFound(pg.WrapError(err)) {
		if err := s.Setup(ns); err != nil {
			return nil, err
		}

		_, err = s.db.Exec(query, params...)
	}

	return i, err
}

func (s *pgService) listIssuers(
	ns, where string,
	params ...interface{},
) (List, error) {
	query := fmt.Sprintf(pgListIssuers, ns, where)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		if pg.IsRelationNotFound(pg.WrapError(err)) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			return s.listIssuers(ns, where, params...)
		}

		return nil, err
	}
	defer rows.Close()

	is := List{}

	for rows.Next() {
		issuer := &Issuer{}

		err := rows.Scan(
			&issuer.ID,
			&issuer.InvitesAvailable,
			&issuer.Role,
			&issuer.CreatedAt,
			&issuer.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		issuer.CreatedAt = issuer.CreatedAt.UTC()
		issuer.UpdatedAt = issuer.UpdatedAt.UTC()

		is = append(is, issuer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return is, nil
}

func (s *pgService) update(ns string, i *Issuer) (*Issuer, error) {
	now, err := time.Parse(pg.TimeFormat, time.Now().UTC().Format(pg.TimeFormat))
	if err != nil {
		return nil, err
	}

	i.UpdatedAt = now

	var (
		params = []interface{}{
			i.ID,
			i.InvitesAvailable,
			i.Role,
			i.UpdatedAt,
		}
		query = fmt.Sprintf(pgUpdateIssuer, ns)
	)

	_, err = s.db.Exec(query, params...)
	if err != nil && pg.IsRelationNotFound(pg.WrapError(err)) {
		if err := s.Setup(ns); err != nil {
			return nil, err
		}

		_, err = s.db.Exec(query, params...)
	}

	return i, err
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

	if len(opts.Roles) > 0 {
		ps := []interface{}{}

		for _, r := range opts.Roles {
			ps = append(ps, r)
		}

		clause, _, err := sqlx.In(pgClauseRoles, ps)
		if err != nil {
			return "", nil, err
		}

		clauses = append(clauses, clause)
		params = append(params, ps...)
	}

	where := ""

	if len(clauses) > 0 {
		where = sqlx.Rebind(sqlx.DOLLAR, pg.ClausesToWhere(clauses...))
	}

	where = fmt.Sprintf("%s\n%s", where, pgOrderCreatedAt)

	if opts.Limit > 0 {
		where = fmt.Sprintf("%s\nLIMIT %d", where, opts.Limit)
	}

	return where, params, nil
}
