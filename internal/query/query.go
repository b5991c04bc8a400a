// Package query turns GET /tasks query-string parameters into a
// repository.TaskQuery.
//
// PERMISSIVE PARSING:
// Nothing here ever returns an error. A parameter that cannot be understood
// is treated exactly as if the client had left it out, so
// "?limit=abc&skip=xyz" lists everything instead of failing or returning an
// empty page.
package query

import (
	"net/url"
	"strings"

	"github.com/sakif/taskmanager/internal/repository"
)

// sortable lists the task fields a client may sort by.
var sortable = map[string]repository.TaskSortField{
	"description": repository.SortDescription,
	"completed":   repository.SortCompleted,
	"createdAt":   repository.SortCreatedAt,
	"updatedAt":   repository.SortUpdatedAt,
}

// ParseTaskQuery reads completed, sortBy, limit and skip from v.
//
//	completed=true        → only completed tasks
//	completed=<other>     → only incomplete tasks (any non-empty value)
//	sortBy=createdAt_desc → newest first; the direction is DESC only when
//	                        the token after "_" is exactly "desc"
//	limit=10&skip=20      → third page of ten
func ParseTaskQuery(v url.Values) repository.TaskQuery {
	var q repository.TaskQuery

	if c := v.Get("completed"); c != "" {
		completed := c == "true"
		q.Completed = &completed
	}

	if s := v.Get("sortBy"); s != "" {
		parts := strings.Split(s, "_")
		if field, ok := sortable[parts[0]]; ok {
			q.SortBy = field
			q.SortDesc = len(parts) > 1 && parts[1] == "desc"
		}
	}

	if n, ok := leadingInt(v.Get("limit")); ok && n > 0 {
		q.Limit = n
	}
	if n, ok := leadingInt(v.Get("skip")); ok && n > 0 {
		q.Skip = n
	}

	return q
}

// maxInt caps parsed values so a huge digit string cannot overflow.
const maxInt = 1<<31 - 1

// leadingInt parses the integer at the start of s, ignoring whatever follows:
// "10" → 10, "  7 items" → 7, "3.9" → 3, "-2" → -2. It reports false when s
// does not start with a number at all.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n, digits := 0, 0
	for ; digits < len(s); digits++ {
		c := s[digits]
		if c < '0' || c > '9' {
			break
		}
		d := int(c - '0')
		if n > (maxInt-d)/10 {
			n = maxInt
		} else {
			n = n*10 + d
		}
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
