package state

// Record is an ordered field-name-to-value record: the ledger shape of a
// contract. Field order matches the contract's declared layout and is
// significant for numeric field-index resolution in query programs.
//
// Like Value, a Record is immutable; WithValue returns a new Record.
type Record struct {
	fields []string
	values map[string]Value
}

// NewRecord builds a record over the given field order. Values missing
// from the map default to Null. Fields not in the order are ignored.
func NewRecord(fields []string, values map[string]Value) *Record {
	order := make([]string, len(fields))
	copy(order, fields)
	vals := make(map[string]Value, len(order))
	for _, name := range order {
		vals[name] = values[name]
	}
	return &Record{fields: order, values: vals}
}

// Fields returns the field names in declaration order.
func (r *Record) Fields() []string {
	cp := make([]string, len(r.fields))
	copy(cp, r.fields)
	return cp
}

// Get returns the value of the named field, or false if the field is
// unknown.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// FieldAt returns the field name at a declaration-order position, or
// false if the position is out of range.
func (r *Record) FieldAt(i int) (string, bool) {
	if i < 0 || i >= len(r.fields) {
		return "", false
	}
	return r.fields[i], true
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}

// WithValue returns a new Record with the named field set to v. The
// receiver is unchanged. Unknown field names return the receiver.
func (r *Record) WithValue(name string, v Value) *Record {
	if _, ok := r.values[name]; !ok {
		return r
	}
	vals := make(map[string]Value, len(r.values))
	for k, val := range r.values {
		vals[k] = val
	}
	vals[name] = v
	return &Record{fields: r.fields, values: vals}
}

// RecordEqual reports structural equality of two records, including field
// order.
func RecordEqual(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.fields) != len(b.fields) {
		return false
	}
	for i, name := range a.fields {
		if b.fields[i] != name {
			return false
		}
		if !Equal(a.values[name], b.values[name]) {
			return false
		}
	}
	return true
}
