package quickbase

import "strings"

// Predicate decides whether a field satisfies one step of a cascade.
type Predicate func(Field) bool

// Cascade is an ordered list of predicates for locating a column when the
// exact id is unknown. Earlier entries are stronger matches.
type Cascade struct {
	Target     string
	Predicates []Predicate
}

// ResolveField applies the cascade in order; the first predicate with a match
// wins, and within a predicate the first field in list order wins. The bool
// is false when nothing matched; callers turn that into a
// FieldResolutionError with the candidate list attached.
func ResolveField(fields []Field, cascade Cascade) (Field, bool) {
	for _, match := range cascade.Predicates {
		for _, f := range fields {
			if match(f) {
				return f, true
			}
		}
	}
	return Field{}, false
}

// LabelEquals matches a case-insensitive, trimmed label.
func LabelEquals(label string) Predicate {
	want := strings.ToLower(label)
	return func(f Field) bool {
		return strings.ToLower(strings.TrimSpace(f.Label)) == want
	}
}

// LabelContains matches when the label contains the substring.
func LabelContains(substr string) Predicate {
	want := strings.ToLower(substr)
	return func(f Field) bool {
		return strings.Contains(strings.ToLower(f.Label), want)
	}
}

// LabelContainsAll matches when the label contains every substring.
func LabelContainsAll(substrs ...string) Predicate {
	wants := make([]string, len(substrs))
	for i, s := range substrs {
		wants[i] = strings.ToLower(s)
	}
	return func(f Field) bool {
		label := strings.ToLower(f.Label)
		for _, w := range wants {
			if !strings.Contains(label, w) {
				return false
			}
		}
		return true
	}
}

// FirstOfType matches the first field of a base or field type, excluding one
// id (normally the record id). Last-resort step of a cascade.
func FirstOfType(typeName string, excludeID int) Predicate {
	return func(f Field) bool {
		return (f.BaseType == typeName || f.FieldType == typeName) && f.ID != excludeID
	}
}

// DefaultRecordIDField is where QuickBase puts the record id unless the table
// says otherwise.
const DefaultRecordIDField = 3

// ResolveRecordIDField finds the record-id column, defaulting to field 3.
func ResolveRecordIDField(fields []Field) int {
	for _, f := range fields {
		if f.FieldType == "recordid" || f.BaseType == "recordid" || f.ID == DefaultRecordIDField {
			return f.ID
		}
	}
	return DefaultRecordIDField
}

// SchoolNameCascade locates the display-name column on the Jobs table.
func SchoolNameCascade(recordIDField int) Cascade {
	return Cascade{
		Target: "School Name",
		Predicates: []Predicate{
			LabelEquals("school name"),
			LabelContainsAll("school", "name"),
			LabelContains("school"),
			FirstOfType("text", recordIDField),
		},
	}
}

// UOMCascade locates the display-value column on the UOM table.
func UOMCascade(recordIDField int) Cascade {
	return Cascade{
		Target: "UOM",
		Predicates: []Predicate{
			LabelEquals("uom"),
			LabelContains("uom"),
			LabelContains("unit"),
			FirstOfType("text", recordIDField),
		},
	}
}

// EmailCascade locates the email column on the contacts table. No type-based
// fallback: guessing an email column is worse than failing.
func EmailCascade() Cascade {
	return Cascade{
		Target: "Email Address",
		Predicates: []Predicate{
			LabelEquals("email address"),
			LabelEquals("email"),
			LabelContains("email address"),
		},
	}
}

// MaterialOrdersCascade locates the access-flag column on the contacts table.
func MaterialOrdersCascade() Cascade {
	return Cascade{
		Target: "Material Orders",
		Predicates: []Predicate{
			LabelEquals("material orders"),
			LabelContains("material orders"),
			LabelContainsAll("material", "order"),
		},
	}
}
