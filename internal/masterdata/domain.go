// Package masterdata answers existence questions about procurement reference data.
package masterdata

import (
	"context"
	"errors"
	"fmt"
)

// Kind names a reference entity.
type Kind string

const (
	KindMaterial        Kind = "material"
	KindPlant           Kind = "plant"
	KindStorageLocation Kind = "storage_location"
	KindPurchasingGroup Kind = "purchasing_group"
	KindDocumentType    Kind = "document_type"
	KindVendor          Kind = "vendor"
)

var (
	// ErrUnknownKind is returned for kinds outside the whitelist.
	ErrUnknownKind = errors.New("masterdata: unknown entity kind")
	// ErrKeyArity is returned when the key does not match the kind's key columns.
	ErrKeyArity = errors.New("masterdata: wrong number of key fields")
)

type entity struct {
	table   string
	columns []string
}

var entities = map[Kind]entity{
	KindMaterial:        {table: "master_materials", columns: []string{"material"}},
	KindPlant:           {table: "master_plants", columns: []string{"plant"}},
	KindStorageLocation: {table: "master_storage_locations", columns: []string{"plant", "storage_location"}},
	KindPurchasingGroup: {table: "master_purchasing_groups", columns: []string{"purchasing_group"}},
	KindDocumentType:    {table: "master_document_types", columns: []string{"document_type"}},
	KindVendor:          {table: "master_vendors", columns: []string{"supplier"}},
}

// Checker reports whether a reference record exists.
type Checker interface {
	Exists(ctx context.Context, kind Kind, key ...string) (bool, error)
}

// ParseKind validates a kind received from outside the process.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(raw)
	if _, ok := entities[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return kind, nil
}

// Arity returns the number of key fields the kind expects.
func (k Kind) Arity() int {
	return len(entities[k].columns)
}

func lookup(kind Kind, key []string) (entity, error) {
	e, ok := entities[kind]
	if !ok {
		return entity{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(key) != len(e.columns) {
		return entity{}, fmt.Errorf("%w: %s expects %d, got %d", ErrKeyArity, kind, len(e.columns), len(key))
	}
	return e, nil
}

func blankKey(key []string) bool {
	for _, part := range key {
		if part == "" {
			return true
		}
	}
	return false
}
