package plan

// DesignSpec is the structured specification a designer response is decoded into.
type DesignSpec map[string]any

// FallbackDesign returns the placeholder specification used when a designer
// response carries no extractable JSON. It is never used for planner output.
func FallbackDesign(title, description string) DesignSpec {
	if title == "" {
		title = description
	}
	return DesignSpec{
		"architecture":         "Simple implementation",
		"components":           []any{title},
		"interfaces":           []any{},
		"data_structures":      map[string]any{},
		"dependencies":         []any{},
		"implementation_notes": description,
	}
}

// ParseDesign decodes a designer response, falling back to FallbackDesign.
// The boolean reports whether the specification came from the response.
func ParseDesign(text, title, description string) (DesignSpec, bool) {
	var spec map[string]any
	if err := Decode(text, &spec); err != nil || len(spec) == 0 {
		return FallbackDesign(title, description), false
	}
	return DesignSpec(spec), true
}
