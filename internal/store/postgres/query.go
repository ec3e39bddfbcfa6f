package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// listQuery builds a SELECT with positional arguments. The base statement
// must already contain a WHERE clause.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) where(cond string, v any) {
	q.sb.WriteString(" AND ")
	q.sb.WriteString(fmt.Sprintf(cond, q.arg(v)))
}

// apply adds the time window, ordering (newest first) and pagination of opts
// using timeCol as the timestamp column.
func (q *listQuery) apply(opts domain.ListOpts, timeCol string) {
	if opts.Since != nil {
		q.where(timeCol+" >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where(timeCol+" <= %s", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY " + timeCol + " DESC")
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
}

func (q *listQuery) String() string { return q.sb.String() }

func (q *listQuery) Args() []any { return q.args }
