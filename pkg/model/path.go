package model

import "strings"

// GjsonPath converts a user-friendly path (using /) to a gjson path.
// Example: "resource/attributes/service.name" -> "resource.attributes.service\.name"
func GjsonPath(userPath string) string {
	parts := strings.Split(userPath, "/")
	for i, part := range parts {
		// Dots within a part are literal key characters
		parts[i] = strings.ReplaceAll(part, ".", "\\.")
	}
	return strings.Join(parts, ".")
}
