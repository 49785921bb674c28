// Package pgtypes provides a pgpipeline.TypeRegistry backed by pgx's
// pgtype.Map, the same decoder table pgx/v5 itself uses for the OIDs
// Postgres ships with built in (§9 "Explicit type registry collaborator":
// supplied at Conn construction, not registered globally at load time).
package pgtypes

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shipq/pgpipeline/pgpipeline"
)

// Registry is a pgpipeline.TypeRegistry backed by a pgtype.Map.
type Registry struct {
	m *pgtype.Map
}

// Default returns a Registry wrapping pgtype.NewMap(), which covers every
// built-in OID pgx knows how to decode in its default configuration.
func Default() *Registry {
	return &Registry{m: pgtype.NewMap()}
}

// Decode implements pgpipeline.TypeRegistry by looking up oid in the
// underlying pgtype.Map and scanning raw into a suitable Go value. Values
// pgtype doesn't recognize fall back to their raw text form.
func (r *Registry) Decode(oid uint32, modifier int32, name string, raw []byte) (any, error) {
	if raw == nil {
		return nil, nil
	}

	dt, ok := r.m.TypeForOID(oid)
	if !ok {
		return string(raw), nil
	}

	value, err := dt.Codec.DecodeValue(r.m, oid, pgtype.TextFormatCode, raw)
	if err != nil {
		return string(raw), nil
	}
	return value, nil
}

var _ pgpipeline.TypeRegistry = (*Registry)(nil)
