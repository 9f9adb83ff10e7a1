package masterdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway runs existence lookups against PostgreSQL.
type Gateway struct {
	q Querier
}

// NewGateway binds a gateway to a pool or an open transaction.
func NewGateway(q Querier) *Gateway {
	return &Gateway{q: q}
}

// Exists reports whether a record of kind with the given key exists.
// Blank key fields never match.
func (g *Gateway) Exists(ctx context.Context, kind Kind, key ...string) (bool, error) {
	e, err := lookup(kind, key)
	if err != nil {
		return false, err
	}
	if blankKey(key) {
		return false, nil
	}
	conds := make([]string, len(e.columns))
	args := make([]any, len(key))
	for i, col := range e.columns {
		conds[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args[i] = key[i]
	}
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", e.table, strings.Join(conds, " AND "))
	var found bool
	if err := g.q.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("masterdata: exists %s: %w", kind, err)
	}
	return found, nil
}
