package model

// SchemaKind is the structural dialect of a rate document's provider references.
type SchemaKind int

const (
	SchemaUnknown SchemaKind = iota
	EmbeddedProviders
	ExternalProviders
)

func (k SchemaKind) String() string {
	switch k {
	case EmbeddedProviders:
		return "embedded"
	case ExternalProviders:
		return "external"
	default:
		return "unknown"
	}
}

func (k SchemaKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
