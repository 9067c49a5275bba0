package results

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// scanRunSet rebuilds the tensor from rows ordered by
// (run, task_trained, task_evaluated).
func scanRunSet(rows *sql.Rows, experimentID string) (*continual.RunSet, error) {
	rs := &continual.RunSet{}
	for rows.Next() {
		var run, trained, evaluated int
		var acc float64
		if err := rows.Scan(&run, &trained, &evaluated, &acc); err != nil {
			return nil, fmt.Errorf("loading run set for %s: %w", experimentID, err)
		}
		for len(rs.Runs) <= run {
			rs.Runs = append(rs.Runs, continual.AccuracyMatrix{})
		}
		for len(rs.Runs[run]) <= trained {
			rs.Runs[run] = append(rs.Runs[run], nil)
		}
		for len(rs.Runs[run][trained]) <= evaluated {
			rs.Runs[run][trained] = append(rs.Runs[run][trained], 0)
		}
		rs.Runs[run][trained][evaluated] = acc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading run set for %s: %w", experimentID, err)
	}
	if len(rs.Runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentID)
	}
	return rs, nil
}
