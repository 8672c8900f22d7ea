package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// Ledger implements domain.Ledger on PostgreSQL. Each Update is one
// database transaction; rows read inside it are locked with FOR UPDATE so
// concurrent units touching the same market serialize.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

var _ domain.Ledger = (*Ledger)(nil)

func (l *Ledger) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return pgx.BeginFunc(ctx, l.pool, func(t pgx.Tx) error {
		return fn(&ledgerTx{tx: t, forUpdate: true})
	})
}

func (l *Ledger) View(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(t pgx.Tx) error {
		return fn(&ledgerTx{tx: t})
	})
}

// Markets lists markets oldest first.
func (l *Ledger) Markets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	q := newQuery(`SELECT doc FROM markets WHERE 1=1`)
	q.window("created_at", opts)
	q.raw(" ORDER BY created_at, id")
	q.page(opts.Limit, opts.Offset)
	return queryDocs[domain.Market](ctx, l.pool, q, "list markets")
}

// Rounds lists matching rounds, newest number first within each market.
func (l *Ledger) Rounds(ctx context.Context, f domain.RoundFilter) ([]domain.Round, error) {
	q := newQuery(`SELECT doc FROM rounds WHERE 1=1`)
	if f.MarketID != "" {
		q.where("market_id = ", f.MarketID)
	}
	if f.Status != nil {
		q.where("status = ", f.Status.String())
	}
	q.raw(" ORDER BY market_id, number DESC")
	q.page(f.Limit, 0)
	return queryDocs[domain.Round](ctx, l.pool, q, "list rounds")
}

// Transfers lists transfers touching account (all when empty), oldest first.
func (l *Ledger) Transfers(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Transfer, error) {
	q := newQuery(`SELECT id, market_id, number, asset, from_account, to_account, amount::text, reason, created_at
		FROM transfers WHERE 1=1`)
	if account != "" {
		q.args = append(q.args, account)
		fmt.Fprintf(&q.sb, " AND (from_account = $%d OR to_account = $%d)", len(q.args), len(q.args))
	}
	q.window("created_at", opts)
	q.raw(" ORDER BY id")
	q.page(opts.Limit, opts.Offset)

	rows, err := l.pool.Query(ctx, q.sb.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		var (
			t      domain.Transfer
			number int64
			amount string
		)
		if err := rows.Scan(&t.ID, &t.MarketID, &number, &t.Asset, &t.From, &t.To, &amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transfer: %w", err)
		}
		t.Round = uint64(number)
		if t.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("postgres: transfer %d amount %q: %w", t.ID, amount, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transfers rows: %w", err)
	}
	return out, nil
}

// query accumulates a SQL statement and its positional arguments.
type query struct {
	sb   strings.Builder
	args []any
}

func newQuery(base string) *query {
	q := &query{}
	q.sb.WriteString(base)
	return q
}

func (q *query) raw(s string) { q.sb.WriteString(s) }

func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	fmt.Fprintf(&q.sb, " AND %s$%d", cond, len(q.args))
}

func (q *query) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(col+" >= ", *opts.Since)
	}
	if opts.Until != nil {
		q.where(col+" <= ", *opts.Until)
	}
}

func (q *query) page(limit, offset int) {
	if limit > 0 {
		q.args = append(q.args, limit)
		fmt.Fprintf(&q.sb, " LIMIT $%d", len(q.args))
	}
	if offset > 0 {
		q.args = append(q.args, offset)
		fmt.Fprintf(&q.sb, " OFFSET $%d", len(q.args))
	}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// queryDocs runs q, which must select a single JSONB doc column, and
// decodes every row into T.
func queryDocs[T any](ctx context.Context, db querier, q *query, what string) ([]T, error) {
	rows, err := db.Query(ctx, q.sb.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", what, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("postgres: %s scan: %w", what, err)
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("postgres: %s decode: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return out, nil
}

// ledgerTx implements domain.LedgerTx inside one pgx transaction.
type ledgerTx struct {
	tx        pgx.Tx
	forUpdate bool
}

// get loads one doc into dst, mapping a missing row to domain.ErrNotFound.
func (t *ledgerTx) get(ctx context.Context, dst any, what, sql string, args ...any) error {
	if t.forUpdate {
		sql += " FOR UPDATE"
	}
	var doc []byte
	err := t.tx.QueryRow(ctx, sql, args...).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: get %s: %w", what, err)
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("postgres: decode %s: %w", what, err)
	}
	return nil
}

func (t *ledgerTx) put(ctx context.Context, what string, v any, sql string, args ...any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", what, err)
	}
	if _, err := t.tx.Exec(ctx, sql, append(args, doc)...); err != nil {
		return fmt.Errorf("postgres: put %s: %w", what, err)
	}
	return nil
}

func (t *ledgerTx) Market(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	err := t.get(ctx, &m, "market "+id, `SELECT doc FROM markets WHERE id = $1`, id)
	return m, err
}

func (t *ledgerTx) PutMarket(ctx context.Context, m domain.Market) error {
	const sql = `
		INSERT INTO markets (id, admin, market_type, is_active, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			admin       = EXCLUDED.admin,
			market_type = EXCLUDED.market_type,
			is_active   = EXCLUDED.is_active,
			doc         = EXCLUDED.doc,
			updated_at  = NOW()`
	return t.put(ctx, "market "+m.ID, m, sql, m.ID, m.Admin, m.Type.String(), m.IsActive, m.CreatedAt)
}

func (t *ledgerTx) Round(ctx context.Context, key domain.RoundKey) (domain.Round, error) {
	var r domain.Round
	err := t.get(ctx, &r, "round "+key.String(),
		`SELECT doc FROM rounds WHERE market_id = $1 AND number = $2`, key.MarketID, int64(key.Number))
	return r, err
}

func (t *ledgerTx) PutRound(ctx context.Context, r domain.Round) error {
	const sql = `
		INSERT INTO rounds (market_id, number, status, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, number) DO UPDATE SET
			status     = EXCLUDED.status,
			doc        = EXCLUDED.doc,
			updated_at = NOW()`
	return t.put(ctx, "round "+r.Key().String(), r, sql, r.MarketID, int64(r.Number), r.Status.String())
}

func (t *ledgerTx) Bet(ctx context.Context, key domain.BetKey) (domain.Bet, error) {
	var b domain.Bet
	err := t.get(ctx, &b, "bet",
		`SELECT doc FROM bets WHERE market_id = $1 AND number = $2 AND wallet = $3`,
		key.Round.MarketID, int64(key.Round.Number), key.User)
	return b, err
}

func (t *ledgerTx) PutBet(ctx context.Context, b domain.Bet) error {
	const sql = `
		INSERT INTO bets (market_id, number, wallet, settled, placed_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id, number, wallet) DO UPDATE SET
			settled = EXCLUDED.settled,
			doc     = EXCLUDED.doc`
	return t.put(ctx, "bet", b, sql, b.MarketID, int64(b.Round), b.User, b.Settled, b.PlacedAt)
}

func (t *ledgerTx) Bets(ctx context.Context, key domain.RoundKey) ([]domain.Bet, error) {
	q := newQuery(`SELECT doc FROM bets WHERE market_id = $1 AND number = $2 ORDER BY placed_at, wallet`)
	q.args = []any{key.MarketID, int64(key.Number)}
	return queryDocs[domain.Bet](ctx, t.tx, q, "list bets")
}

func (t *ledgerTx) Streak(ctx context.Context, key domain.StreakKey) (domain.Streak, error) {
	var s domain.Streak
	err := t.get(ctx, &s, "streak",
		`SELECT doc FROM streaks WHERE wallet = $1 AND market_id = $2`, key.User, key.MarketID)
	return s, err
}

func (t *ledgerTx) PutStreak(ctx context.Context, s domain.Streak) error {
	const sql = `
		INSERT INTO streaks (wallet, market_id, status, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet, market_id) DO UPDATE SET
			status = EXCLUDED.status,
			doc    = EXCLUDED.doc`
	return t.put(ctx, "streak", s, sql, s.User, s.MarketID, s.Status.String())
}

func (t *ledgerTx) CommunityEntry(ctx context.Context, key domain.BetKey) (domain.CommunityEntry, error) {
	var e domain.CommunityEntry
	err := t.get(ctx, &e, "community entry",
		`SELECT doc FROM community_entries WHERE market_id = $1 AND number = $2 AND wallet = $3`,
		key.Round.MarketID, int64(key.Round.Number), key.User)
	return e, err
}

func (t *ledgerTx) PutCommunityEntry(ctx context.Context, e domain.CommunityEntry) error {
	const sql = `
		INSERT INTO community_entries (market_id, number, wallet, seq, doc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, number, wallet) DO UPDATE SET
			doc = EXCLUDED.doc`
	return t.put(ctx, "community entry", e, sql, e.MarketID, int64(e.Round), e.User, int32(e.Seq))
}

func (t *ledgerTx) CommunityEntries(ctx context.Context, key domain.RoundKey) ([]domain.CommunityEntry, error) {
	q := newQuery(`SELECT doc FROM community_entries WHERE market_id = $1 AND number = $2 ORDER BY seq`)
	q.args = []any{key.MarketID, int64(key.Number)}
	return queryDocs[domain.CommunityEntry](ctx, t.tx, q, "list community entries")
}

func (t *ledgerTx) Jackpot(ctx context.Context, marketID string) (domain.JackpotPot, error) {
	var p domain.JackpotPot
	err := t.get(ctx, &p, "jackpot "+marketID, `SELECT doc FROM jackpots WHERE market_id = $1`, marketID)
	return p, err
}

func (t *ledgerTx) PutJackpot(ctx context.Context, p domain.JackpotPot) error {
	const sql = `
		INSERT INTO jackpots (market_id, doc) VALUES ($1, $2)
		ON CONFLICT (market_id) DO UPDATE SET doc = EXCLUDED.doc`
	return t.put(ctx, "jackpot "+p.MarketID, p, sql, p.MarketID)
}

func (t *ledgerTx) PatternConfig(ctx context.Context, marketID string, patternID uint8) (domain.PatternConfig, error) {
	var c domain.PatternConfig
	err := t.get(ctx, &c, "pattern config",
		`SELECT doc FROM pattern_configs WHERE market_id = $1 AND pattern_id = $2`, marketID, int16(patternID))
	return c, err
}

func (t *ledgerTx) PutPatternConfig(ctx context.Context, c domain.PatternConfig) error {
	const sql = `
		INSERT INTO pattern_configs (market_id, pattern_id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (market_id, pattern_id) DO UPDATE SET doc = EXCLUDED.doc`
	return t.put(ctx, "pattern config", c, sql, c.MarketID, int16(c.PatternID))
}

func (t *ledgerTx) PermissionGroup(ctx context.Context, key domain.RoundKey) (domain.PermissionGroup, error) {
	var g domain.PermissionGroup
	err := t.get(ctx, &g, "permission group",
		`SELECT doc FROM permission_groups WHERE market_id = $1 AND number = $2`, key.MarketID, int64(key.Number))
	return g, err
}

func (t *ledgerTx) PutPermissionGroup(ctx context.Context, g domain.PermissionGroup) error {
	const sql = `
		INSERT INTO permission_groups (market_id, number, doc) VALUES ($1, $2, $3)
		ON CONFLICT (market_id, number) DO UPDATE SET doc = EXCLUDED.doc`
	return t.put(ctx, "permission group", g, sql, g.MarketID, int64(g.Round))
}

func (t *ledgerTx) RecordTransfer(ctx context.Context, tr domain.Transfer) error {
	const sql = `
		INSERT INTO transfers (market_id, number, asset, from_account, to_account, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)`
	_, err := t.tx.Exec(ctx, sql,
		tr.MarketID, int64(tr.Round), tr.Asset, tr.From, tr.To,
		strconv.FormatUint(tr.Amount, 10), tr.Reason, tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record transfer: %w", err)
	}
	return nil
}
