// Package session drives one authenticated connection: the simple query
// cycle, the extended Parse/Bind/Describe/Execute state machine, and
// placeholder substitution into the literal SQL handed to the engine.
package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

var (
	namedPlaceholderRe   = regexp.MustCompile(`%\(([A-Za-z0-9_]+)\)s`)
	indexedPlaceholderRe = regexp.MustCompile(`\$([1-9][0-9]*)`)
	castPlaceholderRe    = regexp.MustCompile(`\$([1-9][0-9]*)::([A-Za-z0-9_]+)`)
)

// substitute inlines bound parameter values into the statement text. Three
// placeholder styles are recognized, in priority order: named %(name)s,
// indexed $1..$n, positional %s. Only the first style present is applied.
func substitute(sql string, params []*string, oids []uint32) (string, error) {
	oidAt := func(i int) uint32 {
		if i < len(oids) {
			return oids[i]
		}
		return 0
	}

	if names := namedPlaceholderRe.FindAllStringSubmatch(sql, -1); len(names) > 0 {
		order := make([]string, 0, len(names))
		seen := make(map[string]int)
		for _, m := range names {
			if _, ok := seen[m[1]]; !ok {
				seen[m[1]] = len(order)
				order = append(order, m[1])
			}
		}
		if len(order) != len(params) {
			return "", fmt.Errorf("statement names %d parameters but %d were bound", len(order), len(params))
		}
		return namedPlaceholderRe.ReplaceAllStringFunc(sql, func(m string) string {
			name := namedPlaceholderRe.FindStringSubmatch(m)[1]
			i := seen[name]
			return renderLiteral(params[i], oidAt(i))
		}), nil
	}

	if idxs := indexedPlaceholderRe.FindAllStringSubmatch(sql, -1); len(idxs) > 0 {
		max := 0
		for _, m := range idxs {
			n, _ := strconv.Atoi(m[1])
			if n > max {
				max = n
			}
		}
		if len(params) < max {
			return "", fmt.Errorf("statement references $%d but only %d parameters were bound", max, len(params))
		}
		return indexedPlaceholderRe.ReplaceAllStringFunc(sql, func(m string) string {
			n, _ := strconv.Atoi(m[1:])
			return renderLiteral(params[n-1], oidAt(n-1))
		}), nil
	}

	count := strings.Count(sql, "%s")
	if count != len(params) {
		return "", fmt.Errorf("statement has %d positional placeholders but %d parameters were bound", count, len(params))
	}
	if count == 0 {
		return sql, nil
	}
	var out strings.Builder
	rest := sql
	for i := 0; i < count; i++ {
		j := strings.Index(rest, "%s")
		out.WriteString(rest[:j])
		out.WriteString(renderLiteral(params[i], oidAt(i)))
		rest = rest[j+2:]
	}
	out.WriteString(rest)
	return out.String(), nil
}

// renderLiteral turns one bound value into SQL text. NULL becomes the bare
// keyword; values of plain scalar types whose text form needs no quoting go
// in raw; everything else is single-quoted with doubled quotes.
func renderLiteral(v *string, oid uint32) string {
	if v == nil {
		return "NULL"
	}
	switch oid {
	case pgtype.BoolOID, pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID,
		pgtype.Float4OID, pgtype.Float8OID:
		return *v
	}
	return quoteLiteral(*v)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
