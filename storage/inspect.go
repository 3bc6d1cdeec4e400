package storage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mama165/sdk-go/database"
	"github.com/samber/lo"
)

// HashMapper renders a stored hash as one row of the debug inspector.
func HashMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Key = key

	fields, err := decodeHash(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}

	row.Type = "HASH"
	if prefix, _, ok := strings.Cut(key, ":"); ok {
		row.Namespace = prefix
	}
	names := lo.Keys(fields)
	slices.Sort(names)
	row.Detail = strings.Join(lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%s=%s", name, fields[name])
	}), ", ")
	return row
}
