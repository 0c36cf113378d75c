package models

// All lists the models the sqlite development mode migrates with GORM.
// Postgres deployments use the goose migrations instead.
func All() []any {
	return []any{
		&LedgerEvent{},
		&LedgerRecord{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
