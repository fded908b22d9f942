package domain

// Operator is a comparison used in filter conditions.
type Operator string

const (
	OpEquals Operator = "eq"
	OpIn     Operator = "in"
)

// DefaultSliceSize bounds searches that do not set an explicit limit.
const DefaultSliceSize = 100

// Condition compares one prefixed key (e.g. "product.code") of the map view.
type Condition struct {
	Key    string
	Op     Operator
	Values []string
}

// Filter selects items of one resource. Conditions are combined with AND.
type Filter struct {
	Conditions []Condition
	Offset     int
	Limit      int
}

// NewFilter returns an empty filter limited to DefaultSliceSize items.
func NewFilter() *Filter {
	return &Filter{Limit: DefaultSliceSize}
}

// Eq adds an equality condition.
func (f *Filter) Eq(key, value string) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpEquals, Values: []string{value}})
	return f
}

// In adds a set membership condition. An empty set matches nothing.
func (f *Filter) In(key string, values []string) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpIn, Values: append([]string(nil), values...)})
	return f
}

// Slice sets the offset and maximum number of results.
func (f *Filter) Slice(offset, limit int) *Filter {
	f.Offset = offset
	f.Limit = limit
	return f
}

// Match reports whether a map view satisfies all conditions.
func (f *Filter) Match(values map[string]string) bool {
	for _, c := range f.Conditions {
		v, ok := values[c.Key]
		if !ok {
			return false
		}
		switch c.Op {
		case OpEquals:
			if len(c.Values) != 1 || v != c.Values[0] {
				return false
			}
		case OpIn:
			if !contains(c.Values, v) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
