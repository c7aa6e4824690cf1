package sqlpool

// Blank imports register each driver with database/sql under the exact
// name this package's DriverType config values use (sqlite3, mysql,
// postgres), so setup.go's DSN builder and slot.open's sql.Open call
// need no name-translation table beyond applySetup mapping the "sqlite"
// alias to "sqlite3".
import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)
