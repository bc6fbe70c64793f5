package annotated

// RemarkType describes what a rule did to a value
type RemarkType string

const (
	// RemarkRemoved means the whole value was removed
	RemarkRemoved RemarkType = "x"
	// RemarkSubstituted means the value or a substring was replaced
	RemarkSubstituted RemarkType = "s"
	// RemarkMasked means characters were masked in place
	RemarkMasked RemarkType = "m"
	// RemarkPseudonymized means the value was replaced by a keyed hash
	RemarkPseudonymized RemarkType = "p"
	// RemarkEncrypted means the value was replaced by its encrypted form
	RemarkEncrypted RemarkType = "e"
	// RemarkAnnotated marks a value without changing it
	RemarkAnnotated RemarkType = "a"
)

// Range is a half-open byte range [Start, End) into the processed string
type Range struct {
	Start int
	End   int
}

// Remark records one action applied to a node or a substring of it.
type Remark struct {
	RuleID string
	Type   RemarkType
	Range  *Range
}

// Len returns the length of the ranged part, or -1 without a range
func (r Remark) Len() int {
	if r.Range == nil {
		return -1
	}
	return r.Range.End - r.Range.Start
}

// Well-known error kinds
const (
	ErrInvalidData      = "invalid_data"
	ErrValueTooLong     = "value_too_long"
	ErrTooDeep          = "too_deep"
	ErrMissingAttribute = "missing_attribute"
)

// Error is a processing error attached to a node
type Error struct {
	Kind string
	Data map[string]any
}

// NewError creates an error without extra data
func NewError(kind string) Error {
	return Error{Kind: kind}
}

// InvalidData creates an invalid_data error with a reason
func InvalidData(reason string) Error {
	return Error{Kind: ErrInvalidData, Data: map[string]any{"reason": reason}}
}

// Expected creates an invalid_data error describing the expected kind
func Expected(expectation string) Error {
	return Error{Kind: ErrInvalidData, Data: map[string]any{"reason": "expected " + expectation}}
}

// Meta holds remarks, errors and provenance of a node
type Meta struct {
	Remarks        []Remark
	Errors         []Error
	OriginalLength *int
	OriginalValue  Value
}

// IsEmpty reports whether nothing was recorded
func (m *Meta) IsEmpty() bool {
	return len(m.Remarks) == 0 && len(m.Errors) == 0 && m.OriginalLength == nil && m.OriginalValue == nil
}

// HasErrors reports whether at least one error was recorded
func (m *Meta) HasErrors() bool {
	return len(m.Errors) > 0
}

// AddRemark appends a remark
func (m *Meta) AddRemark(r Remark) {
	m.Remarks = append(m.Remarks, r)
}

// AddError appends an error
func (m *Meta) AddError(err Error) {
	m.Errors = append(m.Errors, err)
}

// SetOriginalLength records the original size unless one is already known,
// so the value reported is always the size before the first modification.
func (m *Meta) SetOriginalLength(n int) {
	if m.OriginalLength != nil {
		return
	}
	m.OriginalLength = &n
}

// SetOriginalValue keeps a dropped value for debugging
func (m *Meta) SetOriginalValue(v Value) {
	m.OriginalValue = v
}

// Merge appends the remarks and errors of other and fills unset fields
func (m *Meta) Merge(other Meta) {
	m.Remarks = append(m.Remarks, other.Remarks...)
	m.Errors = append(m.Errors, other.Errors...)
	if other.OriginalLength != nil {
		m.SetOriginalLength(*other.OriginalLength)
	}
	if m.OriginalValue == nil {
		m.OriginalValue = other.OriginalValue
	}
}
