package challenge

// Default values the remote applies when a field is not provided.
const (
	DefaultType  = "standard"
	DefaultState = "visible"

	StateHidden = "hidden"
)

// DynamicTypes lists challenge types whose value is computed by the remote.
var DynamicTypes = map[string]bool{
	"dynamic": true,
}

// IsDynamicType reports whether t is a dynamic-scoring challenge type.
func IsDynamicType(t string) bool {
	return DynamicTypes[t]
}

// IsDefault reports whether value is the implicit default the remote applies
// for key. Fields at their default are omitted when saving and tolerated as
// missing when verifying.
func IsDefault(key string, value any) bool {
	switch key {
	case "connection_info":
		return value == nil
	case "attempts":
		n, ok := AsInt(value)
		return ok && n == 0
	case "state":
		return value == DefaultState
	case "type":
		return value == DefaultType
	case "tags", "hints", "topics", "requirements", "files":
		return isEmptySeq(value)
	}
	return false
}

func isEmptySeq(value any) bool {
	switch v := value.(type) {
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case []int:
		return len(v) == 0
	}
	return false
}
