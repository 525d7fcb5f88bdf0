package core

import "testing"

func TestLocator_IsZero(t *testing.T) {
	if !(Locator{}).IsZero() {
		t.Error("zero-value Locator should report IsZero() true")
	}
	if (Locator{Criteria: []Criterion{{Attribute: "role", Value: "button"}}}).IsZero() {
		t.Error("Locator with criteria set should report IsZero() false")
	}
}

func TestLocator_Clone(t *testing.T) {
	original := Locator{
		Criteria: []Criterion{{Attribute: "role", Value: "button", Match: MatchExact}},
		PathHint: [][]Criterion{{{Attribute: "title", Value: "Sidebar", Match: MatchContains}}},
		MaxDepth: 5,
	}
	clone := original.Clone()
	clone.Criteria[0].Value = "mutated"
	clone.PathHint[0][0].Value = "mutated"

	if original.Criteria[0].Value != "button" {
		t.Error("mutating clone criteria must not affect the original")
	}
	if original.PathHint[0][0].Value != "Sidebar" {
		t.Error("mutating clone path hint must not affect the original")
	}
}

func TestLocatorTable_Clone(t *testing.T) {
	original := LocatorTable{
		ElementMainInputField: {
			Criteria: []Criterion{{Attribute: "role", Value: "textarea"}},
		},
	}
	clone := original.Clone()

	clone[ElementMainInputField] = Locator{Criteria: []Criterion{{Attribute: "role", Value: "changed"}}}
	if original[ElementMainInputField].Criteria[0].Value != "textarea" {
		t.Error("replacing an entry in the clone must not affect the original table")
	}

	clone2 := original.Clone()
	clone2[ElementMainInputField].Criteria[0].Value = "mutated"
	if original[ElementMainInputField].Criteria[0].Value != "textarea" {
		t.Error("mutating a cloned entry's criteria must not affect the original")
	}
}
