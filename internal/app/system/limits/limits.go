// internal/app/system/limits/limits.go
package limits

// Request body size limits.
const (
	// MaxJSONBody caps every JSON request body the API decodes.
	MaxJSONBody = 1 << 20 // 1 MB
)
