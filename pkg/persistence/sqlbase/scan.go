package sqlbase

import (
	"database/sql"
	"fmt"
	"time"
)

// dbTime scans timestamps stored either natively or as RFC 3339 text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false

		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true

		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}

	t.Time, t.Valid = parsed.UTC(), true

	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time

	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
