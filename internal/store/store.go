// Package store persists accounts, bans, global variables, and the
// login/ipban audit trail behind a PostgreSQL pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/originline/loginauth/internal/config"
	"github.com/originline/loginauth/internal/model"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Store wraps a pgx connection pool and the configurable table names
// it queries against.
type Store struct {
	pool   *pgxpool.Pool
	tables config.DatabaseConfig
}

// New connects to PostgreSQL and returns a Store handle.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool, tables: withTableDefaults(cfg)}, nil
}

func withTableDefaults(cfg config.DatabaseConfig) config.DatabaseConfig {
	if cfg.TableLogin == "" {
		cfg.TableLogin = "login"
	}
	if cfg.TableLoginLog == "" {
		cfg.TableLoginLog = "loginlog"
	}
	if cfg.TableGlobalRegValue == "" {
		cfg.TableGlobalRegValue = "global_reg_value"
	}
	if cfg.TableIPBanList == "" {
		cfg.TableIPBanList = "ipbanlist"
	}
	if cfg.TableSStatus == "" {
		cfg.TableSStatus = "sstatus"
	}
	return cfg
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool returns the underlying pgx pool, for the keepalive scheduler
// job. Migrations do not use it; RunMigrations opens its own
// connection from the DSN.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Lookup returns the account matching userid, respecting case
// sensitivity as a query-time predicate rather than a storage
// property.
func (s *Store) Lookup(ctx context.Context, userid string, caseSensitive bool) (*model.Account, error) {
	query := fmt.Sprintf(
		`SELECT id, userid, user_pass, sex, level, email, connect_until, ban_until, state, lastlogin, logincount, last_ip
		 FROM %s WHERE userid = $1`, s.tables.TableLogin)
	if !caseSensitive {
		query = fmt.Sprintf(
			`SELECT id, userid, user_pass, sex, level, email, connect_until, ban_until, state, lastlogin, logincount, last_ip
			 FROM %s WHERE lower(userid) = lower($1)`, s.tables.TableLogin)
	}

	var acc model.Account
	var sex string
	err := s.pool.QueryRow(ctx, query, userid).Scan(
		&acc.ID, &acc.UserID, &acc.Password, &sex, &acc.GMLevel, &acc.Email,
		&acc.ConnectUntil, &acc.BanUntil, &acc.State, &acc.LastLogin, &acc.LoginCount, &acc.LastIP,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up account %q: %w", userid, err)
	}
	if len(sex) > 0 {
		acc.Sex = model.Sex(sex[0])
	}
	return &acc, nil
}

// LookupByID returns the account matching id, used by the char-link
// account-info and token-validation replies.
func (s *Store) LookupByID(ctx context.Context, id int32) (*model.Account, error) {
	query := fmt.Sprintf(
		`SELECT id, userid, user_pass, sex, level, email, connect_until, ban_until, state, lastlogin, logincount, last_ip
		 FROM %s WHERE id = $1`, s.tables.TableLogin)

	var acc model.Account
	var sex string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&acc.ID, &acc.UserID, &acc.Password, &sex, &acc.GMLevel, &acc.Email,
		&acc.ConnectUntil, &acc.BanUntil, &acc.State, &acc.LastLogin, &acc.LoginCount, &acc.LastIP,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up account id %d: %w", id, err)
	}
	if len(sex) > 0 {
		acc.Sex = model.Sex(sex[0])
	}
	return &acc, nil
}

// Create inserts a new account, assigning an id at or above floor
// (the auth engine passes constants.StartAccountNum), and returns the
// assigned id. The id sequence is advanced to the assigned id, so the
// next account gets the id after it.
func (s *Store) Create(ctx context.Context, userid, password string, sex model.Sex, floor int32) (int32, error) {
	var id int32
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, userid, user_pass, sex, email)
		 VALUES (setval('login_id_seq', GREATEST(nextval('login_id_seq'), $3::bigint))::int, $1, $2, $4, $5)
		 RETURNING id`, s.tables.TableLogin),
		userid, password, floor, string(sex), model.SentinelEmail,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating account %q: %w", userid, err)
	}
	return id, nil
}

// UpdateLoginStats bumps lastlogin/logincount/last_ip after a
// successful authentication.
func (s *Store) UpdateLoginStats(ctx context.Context, id int32, ip string, ts time.Time) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET lastlogin = $1, logincount = logincount + 1, last_ip = $2 WHERE id = $3`,
		s.tables.TableLogin), ts.Unix(), ip, id)
	if err != nil {
		return fmt.Errorf("updating login stats for account %d: %w", id, err)
	}
	return nil
}

// SetBanUntil sets (or clears, with ts=0) the account's ban expiry.
func (s *Store) SetBanUntil(ctx context.Context, id int32, ts int64) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET ban_until = $1 WHERE id = $2`, s.tables.TableLogin), ts, id)
	if err != nil {
		return fmt.Errorf("setting ban_until for account %d: %w", id, err)
	}
	return nil
}

// SetState sets the account's administrative state code.
func (s *Store) SetState(ctx context.Context, id int32, state int) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET state = $1 WHERE id = $2`, s.tables.TableLogin), state, id)
	if err != nil {
		return fmt.Errorf("setting state for account %d: %w", id, err)
	}
	return nil
}

// SetSex overwrites the account's declared sex.
func (s *Store) SetSex(ctx context.Context, id int32, sex model.Sex) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET sex = $1 WHERE id = $2`, s.tables.TableLogin), string(sex), id)
	if err != nil {
		return fmt.Errorf("setting sex for account %d: %w", id, err)
	}
	return nil
}

// SetEmail changes the account's email, but only if currentEmail
// matches what is on file and both addresses pass the email grammar;
// the sentinel sign-up placeholder is never an accepted change target.
// Returns false without error if any guard fails.
func (s *Store) SetEmail(ctx context.Context, id int32, currentEmail, newEmail string) (bool, error) {
	if !model.ValidEmail(currentEmail) || !model.ValidEmail(newEmail) || newEmail == model.SentinelEmail {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET email = $1 WHERE id = $2 AND email = $3`, s.tables.TableLogin),
		newEmail, id, currentEmail,
	)
	if err != nil {
		return false, fmt.Errorf("setting email for account %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReplaceVariables overwrites the full global_reg_value set (type=1)
// for an account with the given map.
func (s *Store) ReplaceVariables(ctx context.Context, accountID int32, vars map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting variable replace tx for account %d: %w", accountID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE type = 1 AND account_id = $1`, s.tables.TableGlobalRegValue), accountID,
	); err != nil {
		return fmt.Errorf("clearing variables for account %d: %w", accountID, err)
	}

	for key, value := range vars {
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (type, account_id, str, value) VALUES (1, $1, $2, $3)`, s.tables.TableGlobalRegValue),
			accountID, key, value,
		); err != nil {
			return fmt.Errorf("inserting variable %q for account %d: %w", key, accountID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing variable replace for account %d: %w", accountID, err)
	}
	return nil
}

// ReadVariables returns the full global_reg_value set (type=1) for an
// account.
func (s *Store) ReadVariables(ctx context.Context, accountID int32) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT str, value FROM %s WHERE type = 1 AND account_id = $1`, s.tables.TableGlobalRegValue), accountID)
	if err != nil {
		return nil, fmt.Errorf("reading variables for account %d: %w", accountID, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning variable row for account %d: %w", accountID, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GMEntry is one row of the GM-level roster returned by LoadGMList.
type GMEntry struct {
	AccountID int32
	Level     int
}

// LoadGMList returns every account with a nonzero GM level.
func (s *Store) LoadGMList(ctx context.Context) ([]GMEntry, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, level FROM %s WHERE level > 0 ORDER BY id`, s.tables.TableLogin))
	if err != nil {
		return nil, fmt.Errorf("loading gm list: %w", err)
	}
	defer rows.Close()

	var out []GMEntry
	for rows.Next() {
		var e GMEntry
		if err := rows.Scan(&e.AccountID, &e.Level); err != nil {
			return nil, fmt.Errorf("scanning gm list row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveServerStatus upserts the last-known population count for a
// char-server slot, so a restarted login server can show stale-but-
// plausible counts before the char-servers reconnect and report fresh
// ones.
func (s *Store) SaveServerStatus(ctx context.Context, index int16, name string, users int) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (index, name, "user") VALUES ($1, $2, $3)
		 ON CONFLICT (index) DO UPDATE SET name = excluded.name, "user" = excluded."user"`,
		s.tables.TableSStatus), index, name, users,
	)
	if err != nil {
		return fmt.Errorf("saving server status for slot %d: %w", index, err)
	}
	return nil
}

// LoadServerStatus returns the last persisted population snapshot for
// every char-server slot, keyed by slot index.
func (s *Store) LoadServerStatus(ctx context.Context) (map[int16]int, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT index, "user" FROM %s`, s.tables.TableSStatus))
	if err != nil {
		return nil, fmt.Errorf("loading server status: %w", err)
	}
	defer rows.Close()

	out := make(map[int16]int)
	for rows.Next() {
		var idx int16
		var users int
		if err := rows.Scan(&idx, &users); err != nil {
			return nil, fmt.Errorf("scanning server status row: %w", err)
		}
		out[idx] = users
	}
	return out, rows.Err()
}

// AppendAudit writes one loginlog row.
func (s *Store) AppendAudit(ctx context.Context, ip, user string, rcode int, message string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (ip, user_name, rcode, log) VALUES ($1, $2, $3, $4)`, s.tables.TableLoginLog),
		ip, user, rcode, message,
	)
	if err != nil {
		slog.Error("append audit failed", "ip", ip, "user", user, "error", err)
		return fmt.Errorf("appending audit row: %w", err)
	}
	return nil
}

// CountRecentBadLogins counts rcode=1 (wrong password) loginlog rows
// from ip within the last `since` duration — the dynamic-ban trigger
// input.
func (s *Store) CountRecentBadLogins(ctx context.Context, ip string, since time.Duration) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE ip = $1 AND rcode = 1 AND time > now() - $2::interval`,
		s.tables.TableLoginLog), ip, since.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recent bad logins for %s: %w", ip, err)
	}
	return n, nil
}

// InsertBan adds an ipbanlist row covering pattern ("a.b.c.*" etc.)
// for [start, expiry).
func (s *Store) InsertBan(ctx context.Context, pattern string, start, expiry int64, reason string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (list, btime, rtime, reason) VALUES ($1, $2, $3, $4)`, s.tables.TableIPBanList),
		pattern, start, expiry, reason,
	)
	if err != nil {
		return fmt.Errorf("inserting ip ban %q: %w", pattern, err)
	}
	return nil
}

// ActiveBanPatterns returns every ipbanlist pattern whose window
// covers now.
func (s *Store) ActiveBanPatterns(ctx context.Context, now int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT list FROM %s WHERE btime <= $1 AND rtime > $1`, s.tables.TableIPBanList), now)
	if err != nil {
		return nil, fmt.Errorf("loading active ip bans: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return nil, fmt.Errorf("scanning ip ban row: %w", err)
		}
		out = append(out, pattern)
	}
	return out, rows.Err()
}

// SweepExpiredBans removes ipbanlist rows whose window has closed.
func (s *Store) SweepExpiredBans(ctx context.Context, now int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE rtime <= $1`, s.tables.TableIPBanList), now)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired ip bans: %w", err)
	}
	return tag.RowsAffected(), nil
}
