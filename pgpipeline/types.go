package pgpipeline

// defaultTypeRegistry is the zero-dependency fallback used when a Conn is
// constructed without an explicit TypeRegistry: every column decodes to
// its raw text representation. pgpipeline/pgtypes ships a richer registry
// built on pgx's pgtype.Map for callers that want typed Go values instead
// of strings.
type defaultTypeRegistry struct{}

func (defaultTypeRegistry) Decode(oid uint32, modifier int32, name string, raw []byte) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return string(raw), nil
}
