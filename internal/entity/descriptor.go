package entity

// Record is implemented by every persisted entity type.
type Record interface {
	// Table returns the backing table name.
	Table() string
	// EntityID returns the primary key value.
	EntityID() string
	// InitDefaults assigns a fresh identifier and store defaults before insert.
	InitDefaults()
	// Touch refreshes the last-mutation instant.
	Touch()
}

// Field describes one persisted column of an entity type. The registry key is
// both the public field name and the column name.
type Field[T Record] struct {
	// Value returns the current column value for inserts and updates.
	Value func(T) any
	// Assign sets the field from an untyped value, converting where safe.
	Assign func(T, any) error
}

// Descriptor is the explicit field registry for an entity type. Repository
// code resolves filter, order and update keys against it; names that are not
// registered are skipped rather than rejected.
type Descriptor[T Record] struct {
	TableName string
	// Columns is the persisted column order used for selects and inserts.
	Columns []string
	Fields  map[string]Field[T]
	New     func() T
	// ScanDest returns scan destinations aligned with Columns.
	ScanDest func(T) []any
	// KeyDest returns destinations for the insert RETURNING clause
	// (id, created_at, updated_at).
	KeyDest func(T) []any
}

// Has reports whether the field name is registered.
func (d *Descriptor[T]) Has(field string) bool {
	_, ok := d.Fields[field]
	return ok
}
