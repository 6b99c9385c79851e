package migrations

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/partsledger/internal/inventory"
)

func TestNamesAreOrdered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_init.sql", names[0])
}

func TestInitDeclaresLedgerConstraints(t *testing.T) {
	body, err := Files.ReadFile("0001_init.sql")
	require.NoError(t, err)
	schema := string(body)
	for _, constraint := range []string{
		"inventory_movements_idempotency_key_key",
		"inventory_transfers_tenant_reference_key",
		"inventory_transfers_fingerprint_key",
		"temp_stock_entries_tenant_reference_key",
		"purchases_tenant_number_key",
		"PRIMARY KEY (tenant_id, location_id, part_id)",
	} {
		require.True(t, strings.Contains(schema, constraint), constraint)
	}
}

func TestInitMatchesLedgerValues(t *testing.T) {
	body, err := Files.ReadFile("0001_init.sql")
	require.NoError(t, err)
	schema := string(body)

	status := "'" + string(inventory.TransferPosted) + "'"
	require.Contains(t, schema, "DEFAULT "+status+" CHECK (status IN ("+status+"))")
	require.NotContains(t, schema, "'COMPLETED'")

	scale := "NUMERIC(18," + strconv.Itoa(inventory.QuantityScale) + ")"
	columns := 0
	for _, line := range strings.Split(schema, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "qty" {
			continue
		}
		columns++
		require.Equal(t, scale, fields[1], line)
	}
	require.Equal(t, 6, columns)
}
