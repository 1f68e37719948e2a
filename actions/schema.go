package actions

// JSON-schema property helpers for the action catalog. The catalog is
// handed to the language model verbatim, so descriptions here are
// written for the model, not for package users.

// stringProperty builds a string property with a description.
func stringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// enumProperty builds a string property restricted to allowed values.
func enumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// arrayProperty builds an array property with the given item schema.
func arrayProperty(description string, items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       items,
	}
}
