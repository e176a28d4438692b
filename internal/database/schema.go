package database

import (
	"strings"

	"statwise/internal/events"
)

// TableDDL is the CREATE statement of one event table.
type TableDDL struct {
	Table string
	SQL   string
}

// dimensionColumns are shared by the traffic and custom-event tables, in
// insert order.
var dimensionColumns = []string{
	"pg", "prev", "host", "ref", "so", "me", "ca", "te", "co",
	"dv", "br", "brv", "os", "osv", "cc", "rg", "ct", "lc",
}

const tableEngine = "ENGINE = MergeTree() PARTITION BY toYYYYMM(created) ORDER BY (pid, created)"

func nullableStrings(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = "  " + c + " Nullable(String)"
	}
	return strings.Join(parts, ",\n")
}

// Schema returns the DDL for every event table.
func Schema() []TableDDL {
	return []TableDDL{
		{
			Table: events.TableTraffic,
			SQL: "CREATE TABLE IF NOT EXISTS " + events.TableTraffic + " (\n" +
				"  pid String,\n" +
				"  psid String,\n" +
				nullableStrings(dimensionColumns) + ",\n" +
				"  unique UInt8,\n" +
				"  sdur UInt32,\n" +
				"  created DateTime('UTC')\n" +
				") " + tableEngine,
		},
		{
			Table: events.TableCustomEvents,
			SQL: "CREATE TABLE IF NOT EXISTS " + events.TableCustomEvents + " (\n" +
				"  pid String,\n" +
				"  psid String,\n" +
				"  name String,\n" +
				nullableStrings(dimensionColumns) + ",\n" +
				"  meta Nested(key String, value String),\n" +
				"  created DateTime('UTC')\n" +
				") " + tableEngine,
		},
		{
			Table: events.TablePerformance,
			SQL: "CREATE TABLE IF NOT EXISTS " + events.TablePerformance + " (\n" +
				"  pid String,\n" +
				nullableStrings([]string{"pg", "dv", "br", "cc", "rg", "ct"}) + ",\n" +
				"  dns Float32,\n" +
				"  tls Float32,\n" +
				"  conn Float32,\n" +
				"  response Float32,\n" +
				"  render Float32,\n" +
				"  domLoad Float32,\n" +
				"  ttfb Float32,\n" +
				"  created DateTime('UTC')\n" +
				") " + tableEngine,
		},
		{
			Table: events.TableCaptcha,
			SQL: "CREATE TABLE IF NOT EXISTS " + events.TableCaptcha + " (\n" +
				"  pid String,\n" +
				nullableStrings([]string{"cc", "br", "os", "dv"}) + ",\n" +
				"  created DateTime('UTC')\n" +
				") " + tableEngine,
		},
	}
}
