package shared

// Inventory permissions.
const (
	PermInventoryView = "inventory.view"
	PermInventoryEdit = "inventory.edit"
	// PermNegativeStock lets an actor post movements that drive a balance below zero.
	PermNegativeStock = "inventory.negative_stock"
	PermTempStock     = "inventory.temp_stock"
	// PermInventoryAudit grants read access to the ledger audit trail.
	PermInventoryAudit = "inventory.audit"
)

// InventoryScopes lists all permissions related to the parts ledger.
func InventoryScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryEdit,
		PermNegativeStock,
		PermTempStock,
		PermInventoryAudit,
	}
}
