package sqlpool

import (
	"fmt"
	"path/filepath"
	"strings"

	"sqlpool/pkg/config"
	"sqlpool/pkg/poolerr"
)

// defaultPort returns the conventional TCP port for a network driver,
// used when Port is not > 0: for mysql only when HostName is set, for
// postgres always (its host itself defaults to localhost), since a host
// without a port is not a usable DSN for either.
func defaultPort(driverType string) int {
	switch driverType {
	case "mysql":
		return 3306
	case "postgres":
		return 5432
	default:
		return 0
	}
}

// isEmbeddedFileDriver reports whether driverType names a file-backed
// embedded engine, the only family the web-root fix-up applies to.
func isEmbeddedFileDriver(driverType string) bool {
	return driverType == "sqlite3" || driverType == "sqlite"
}

// resolveDatabaseName applies the embedded-file fix-up: if the driver is
// an embedded file engine and DatabaseName contains no ':' and the path
// is relative, prepend the application's web-root path. This is resolved
// once, at registration, never at open time.
func resolveDatabaseName(driverType, databaseName, webRootPath string) string {
	if !isEmbeddedFileDriver(driverType) {
		return databaseName
	}
	if strings.Contains(databaseName, ":") {
		return databaseName
	}
	if filepath.IsAbs(databaseName) {
		return databaseName
	}
	return filepath.Join(webRootPath, databaseName)
}

// parsePostOpenStatements splits on ';', drops empty fragments, and trims
// whitespace per fragment.
func parsePostOpenStatements(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// buildDSN assembles a database/sql DSN from the discrete Host/Port/
// UserName/Password/ConnectOptions fields, applying each only when
// non-empty/positive and in field-declaration order, so which field wins
// on a malformed ConnectOptions string stays deterministic even though
// the underlying wire format differs per driver.
func buildDSN(driverType, databaseName string, cfg config.DatabaseConfig) string {
	switch driverType {
	case "sqlite3", "sqlite":
		if cfg.ConnectOptions != "" {
			return databaseName + "?" + cfg.ConnectOptions
		}
		return databaseName

	case "mysql":
		var b strings.Builder
		if cfg.UserName != "" {
			b.WriteString(cfg.UserName)
			if cfg.Password != "" {
				b.WriteString(":")
				b.WriteString(cfg.Password)
			}
			b.WriteString("@")
		}
		if cfg.HostName != "" {
			port := cfg.Port
			if port <= 0 {
				port = defaultPort(driverType)
			}
			fmt.Fprintf(&b, "tcp(%s:%d)", cfg.HostName, port)
		}
		b.WriteString("/")
		b.WriteString(databaseName)
		if cfg.ConnectOptions != "" {
			b.WriteString("?")
			b.WriteString(cfg.ConnectOptions)
		}
		return b.String()

	case "postgres":
		var b strings.Builder
		b.WriteString("postgres://")
		if cfg.UserName != "" {
			b.WriteString(cfg.UserName)
			if cfg.Password != "" {
				b.WriteString(":")
				b.WriteString(cfg.Password)
			}
			b.WriteString("@")
		}
		host := cfg.HostName
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port <= 0 {
			port = defaultPort(driverType)
		}
		fmt.Fprintf(&b, "%s:%d", host, port)
		b.WriteString("/")
		b.WriteString(databaseName)
		if cfg.ConnectOptions != "" {
			b.WriteString("?")
			b.WriteString(cfg.ConnectOptions)
		}
		return b.String()

	default:
		return databaseName
	}
}

// applySetup mutates slot's connection parameters per the configuration
// for database index d. It returns an error only when DatabaseName is
// empty, in which case the caller skips registering the slot.
func applySetup(s *slot, cfg config.DatabaseConfig, webRootPath string) error {
	databaseName := strings.TrimSpace(cfg.DatabaseName)
	if databaseName == "" {
		return poolerr.ErrEmptyDatabaseName
	}

	databaseName = resolveDatabaseName(cfg.DriverType, databaseName, webRootPath)

	s.driver = cfg.DriverType
	if s.driver == "sqlite" {
		// go-sqlite3 registers itself with database/sql only as "sqlite3".
		s.driver = "sqlite3"
	}
	s.dsn = buildDSN(cfg.DriverType, databaseName, cfg)
	s.postOpenStatements = parsePostOpenStatements(cfg.PostOpenStatements)
	s.enableUpsert = cfg.EnableUpsert
	s.extension = newExtension(cfg.DriverType)
	return nil
}
