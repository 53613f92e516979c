package sqlbase

import (
	"regexp"
	"time"
)

// textTimestampLayout is fixed width so stored text sorts chronologically.
const textTimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// Dialect captures the differences between the SQL engines the store runs on. Queries are
// written with numbered ($1, $2, ...) placeholders, each used once and in order.
type Dialect struct {
	Name string
	// PositionalPlaceholders rewrites $N into ? for engines without numbered parameters.
	PositionalPlaceholders bool
	// TextTimestamps stores timestamps as RFC 3339 text instead of native time values.
	TextTimestamps bool
	// IsConflict reports whether err is an integrity constraint violation.
	IsConflict func(err error) bool
}

// Rebind adapts a query written with $N placeholders to the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.PositionalPlaceholders {
		return query
	}

	return placeholderPattern.ReplaceAllString(query, "?")
}

func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC()
	if d.TextTimestamps {
		return t.Format(textTimestampLayout)
	}

	return t
}

func (d Dialect) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}

	return d.timeArg(*t)
}

func (d Dialect) conflict(err error) bool {
	return err != nil && d.IsConflict != nil && d.IsConflict(err)
}
