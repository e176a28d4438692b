package database_test

import (
	"strings"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/config"
	"statwise/internal/database"
	"statwise/internal/events"
	"statwise/internal/query"
	"statwise/internal/timeframe"
)

func TestNamedArgsSortedByName(t *testing.T) {
	args := database.NamedArgs(query.Params{"pid": "abc", "groupFrom": "2024-01-01 00:00:00", "tz": "UTC"})
	require.Len(t, args, 3)

	var names []string
	for _, a := range args {
		nv, ok := a.(driver.NamedValue)
		require.True(t, ok)
		names = append(names, nv.Name)
	}
	assert.Equal(t, []string{"groupFrom", "pid", "tz"}, names)
	assert.Equal(t, clickhouse.Named("pid", "abc"), args[1])
}

func TestKeyTargets(t *testing.T) {
	var key timeframe.BucketKey
	targets, err := database.KeyTargets(&key, []string{"year", "month", "day"})
	require.NoError(t, err)
	require.Len(t, targets, 3)

	*(targets[0].(*uint16)) = 2024
	*(targets[1].(*uint16)) = 7
	*(targets[2].(*uint16)) = 15
	assert.Equal(t, "2024-07-15", key.Label(timeframe.BucketSizeDay))

	_, err = database.KeyTargets(&key, []string{"week"})
	assert.Error(t, err)
}

func TestSchemaCoversEveryTable(t *testing.T) {
	tables := map[string]string{}
	for _, ddl := range database.Schema() {
		tables[ddl.Table] = ddl.SQL
		assert.True(t, strings.HasPrefix(ddl.SQL, "CREATE TABLE IF NOT EXISTS "+ddl.Table))
		assert.Contains(t, ddl.SQL, "created DateTime('UTC')")
		assert.Contains(t, ddl.SQL, "ORDER BY (pid, created)")
	}

	require.Len(t, tables, 4)
	assert.Contains(t, tables[events.TableTraffic], "unique UInt8")
	assert.Contains(t, tables[events.TableTraffic], "sdur UInt32")
	assert.Contains(t, tables[events.TableTraffic], "pg Nullable(String)")
	assert.Contains(t, tables[events.TableCustomEvents], "meta Nested(key String, value String)")
	assert.Contains(t, tables[events.TablePerformance], "domLoad Float32")
	assert.Contains(t, tables[events.TableCaptcha], "cc Nullable(String)")
}

func TestMetaColumnsOrderedByKey(t *testing.T) {
	keys, values := database.MetaColumns(map[string]string{"plan": "pro", "amount": "10"})
	assert.Equal(t, []string{"amount", "plan"}, keys)
	assert.Equal(t, []string{"10", "pro"}, values)

	keys, values = database.MetaColumns(nil)
	assert.Empty(t, keys)
	assert.Empty(t, values)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Setenv("STATWISE_ENV", "test")
	t.Setenv("STATWISE_CLICKHOUSE_ADDR", "ch1:9000, ch2:9000")
	t.Setenv("STATWISE_CLICKHOUSE_DATABASE", "analytics")
	config.Reset()
	defer config.Reset()

	cfg, err := config.Load()
	require.NoError(t, err)

	opts := database.Options(cfg)
	assert.Equal(t, []string{"ch1:9000", "ch2:9000"}, opts.Addr)
	assert.Equal(t, "analytics", opts.Auth.Database)
	assert.Equal(t, clickhouse.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, cfg.GetMaxOpenConns(), opts.MaxOpenConns)
}

func TestMutationsWaitForAllReplicas(t *testing.T) {
	assert.Equal(t, clickhouse.Settings{"mutations_sync": 2}, database.MutationSettings())
}
