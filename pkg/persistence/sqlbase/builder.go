package sqlbase

import (
	"fmt"
	"strings"
)

// clauseBuilder accumulates SET and WHERE fragments with sequentially numbered placeholders.
type clauseBuilder struct {
	sets   []string
	wheres []string
	args   []any
}

func (b *clauseBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *clauseBuilder) where(column string, value any) {
	b.args = append(b.args, value)
	b.wheres = append(b.wheres, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *clauseBuilder) whereString(column, value string) {
	if value != "" {
		b.where(column, value)
	}
}

func (b *clauseBuilder) whereBool(column string, value *bool) {
	if value != nil {
		b.where(column, *value)
	}
}

func (b *clauseBuilder) setClause() string {
	return strings.Join(b.sets, ", ")
}

func (b *clauseBuilder) whereClause() string {
	if len(b.wheres) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(b.wheres, " AND ")
}
