package store

import "strings"

// placeholderList returns "?,?,?" for n placeholders, used to build IN (...)
// clauses for DeleteScripts' batched deletes.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
