package models

// All lists every persisted model, in dependency order, for schema bootstrapping.
func All() []any {
	return []any{
		&User{},
		&Admin{},
		&Product{},
		&Cart{},
		&Order{},
		&PaymentTransaction{},
		&Invoice{},
		&InvoiceSequence{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
