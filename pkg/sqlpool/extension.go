package sqlpool

import (
	"fmt"
	"strings"
)

// Extension is a small per-driver helper attached to every slot at
// registration, keyed on driver name and used here for upsert SQL
// generation: an "ON CONFLICT" statement for SQLite and Postgres, an
// "ON DUPLICATE KEY UPDATE" statement for MySQL, factored into a
// reusable object instead of per-call duplication.
type Extension interface {
	// DriverName is the name this extension was built for.
	DriverName() string

	// UpsertSQL builds an insert statement for table, with the given
	// column order, that additionally behaves as an upsert against
	// conflictColumns when enableUpsert is true. When enableUpsert is
	// false it returns a plain insert.
	UpsertSQL(table string, columns, conflictColumns []string, enableUpsert bool) string
}

// newExtension returns the driver-extension object for driverType. It runs
// at registration, before any sql.Open; driver names not recognized here
// (a misconfigured DriverType fails later, when a slot is first opened)
// fall back to the ANSI-standard extension, which emits a plain insert and
// refuses upserts.
func newExtension(driverType string) Extension {
	switch driverType {
	case "sqlite3", "sqlite":
		return sqliteExtension{}
	case "postgres":
		return postgresExtension{}
	case "mysql":
		return mysqlExtension{}
	default:
		return ansiExtension{}
	}
}

func buildInsert(table string, columns []string, placeholders []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func updateAssignments(columns []string, excluded func(col string) string) string {
	assignments := make([]string, 0, len(columns))
	for _, c := range columns {
		assignments = append(assignments, fmt.Sprintf("%s = %s", c, excluded(c)))
	}
	return strings.Join(assignments, ", ")
}

type ansiExtension struct{}

func (ansiExtension) DriverName() string { return "ansi" }

func (ansiExtension) UpsertSQL(table string, columns, _ []string, _ bool) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	return buildInsert(table, columns, placeholders)
}

// sqliteExtension and postgresExtension share PostgreSQL-dialect
// "ON CONFLICT ... DO UPDATE SET" syntax; SQLite adopted it directly from
// PostgreSQL and lib/pq's placeholder style ($1, $2, ...) is the only
// difference worth modeling here.
type sqliteExtension struct{}

func (sqliteExtension) DriverName() string { return "sqlite3" }

func (sqliteExtension) UpsertSQL(table string, columns, conflictColumns []string, enableUpsert bool) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	insert := buildInsert(table, columns, placeholders)
	if !enableUpsert || len(conflictColumns) == 0 {
		return insert
	}
	return fmt.Sprintf("%s ON CONFLICT(%s) DO UPDATE SET %s",
		insert, strings.Join(conflictColumns, ", "),
		updateAssignments(columns, func(c string) string { return "excluded." + c }))
}

type postgresExtension struct{}

func (postgresExtension) DriverName() string { return "postgres" }

func (postgresExtension) UpsertSQL(table string, columns, conflictColumns []string, enableUpsert bool) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insert := buildInsert(table, columns, placeholders)
	if !enableUpsert || len(conflictColumns) == 0 {
		return insert
	}
	return fmt.Sprintf("%s ON CONFLICT(%s) DO UPDATE SET %s",
		insert, strings.Join(conflictColumns, ", "),
		updateAssignments(columns, func(c string) string { return "excluded." + c }))
}

type mysqlExtension struct{}

func (mysqlExtension) DriverName() string { return "mysql" }

func (mysqlExtension) UpsertSQL(table string, columns, _ []string, enableUpsert bool) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	insert := buildInsert(table, columns, placeholders)
	if !enableUpsert {
		return insert
	}
	return fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s",
		insert, updateAssignments(columns, func(c string) string { return "VALUES(" + c + ")" }))
}
