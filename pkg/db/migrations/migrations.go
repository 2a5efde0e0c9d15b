// Package migrations holds convomem's versioned schema migrations, applied
// in order by db.MigrationRunner. Each file in this package owns one
// logical slice of the schema described in spec.md §6.
package migrations

import "github.com/convomem/convomem/pkg/db"

// All returns every registered migration, in the order new ones should be
// appended (db.MigrationRunner re-sorts by Version regardless).
func All() []db.Migration {
	return []db.Migration{
		migration001Core(),
		migration002FTS(),
		migration003ContextSummary(),
		migration004EntitiesGraph(),
		migration005Analytics(),
		migration006ValidationTriggers(),
		migration007Monitoring(),
		migration008OrphanMentions(),
	}
}
