package querybuilder

import "strings"

// SortField is one key of a sort specification.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSort parses a space separated sort specification such as
// "-price name". A leading '-' means descending, a leading '+' ascending.
func ParseSort(spec string) []SortField {
	var fields []SortField
	for _, token := range strings.Fields(spec) {
		desc := false
		switch token[0] {
		case '-':
			desc = true
			token = token[1:]
		case '+':
			token = token[1:]
		}
		if token == "" {
			continue
		}
		fields = append(fields, SortField{Field: token, Descending: desc})
	}
	return fields
}

// ProjectionField is one key of a projection specification.
type ProjectionField struct {
	Field   string
	Include bool
}

// ParseProjection parses a space separated projection specification such as
// "name price" or "-__v". A leading '-' excludes the field.
func ParseProjection(spec string) []ProjectionField {
	var fields []ProjectionField
	for _, token := range strings.Fields(spec) {
		include := true
		switch token[0] {
		case '-':
			include = false
			token = token[1:]
		case '+':
			token = token[1:]
		}
		if token == "" {
			continue
		}
		fields = append(fields, ProjectionField{Field: token, Include: include})
	}
	return fields
}

// commaListToSpec turns "a,-b" into "a -b".
func commaListToSpec(list string) string {
	return strings.Join(strings.Split(list, ","), " ")
}
