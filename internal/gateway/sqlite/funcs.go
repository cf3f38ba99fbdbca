package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/h0rv/opsdash/internal/gateway"
)

// driverName is go-sqlite3 with the SQL functions below registered on every connection.
const driverName = "sqlite3_opsdash"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{ConnectHook: registerFuncs})
}

func registerFuncs(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("fold", fold, true); err != nil {
		return fmt.Errorf("register fold: %w", err)
	}
	if err := conn.RegisterFunc("sort_key", sortKey, true); err != nil {
		return fmt.Errorf("register sort_key: %w", err)
	}
	return nil
}

// fold lowercases text the way the memory backend does. SQLite's lower() only folds ASCII.
func fold(v any) string {
	switch vv := v.(type) {
	case string:
		return strings.ToLower(vv)
	case []byte:
		return strings.ToLower(string(vv))
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// sortKey orders timestamps by instant and passes every other value through.
// NULL arrives as a nil []byte and must stay NULL to sort first.
func sortKey(v any) any {
	if b, ok := v.([]byte); ok && b == nil {
		return nil
	}
	return gateway.SortKey(v)
}
