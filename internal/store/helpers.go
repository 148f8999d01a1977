package store

import (
	"database/sql"
	"fmt"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanAuditEntries drains rows into audit entries.
func scanAuditEntries(rows *sql.Rows) ([]AuditEntry, error) {
	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var kind string
		var displayName sql.NullString
		if err := rows.Scan(&e.ID, &kind, &e.UserID, &displayName, &e.Text, &e.Time); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Kind = AuditKind(kind)
		e.DisplayName = displayName.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit rows: %w", err)
	}
	return entries, nil
}
