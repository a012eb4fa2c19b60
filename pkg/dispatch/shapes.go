package dispatch

import (
	"github.com/tsbridge/tsbridge/pkg/bridgeerrors"
)

// Database is the normalized database descriptor.
type Database struct {
	Name string `json:"name"`
}

// Backends and server releases disagree on the envelope of list responses:
// a bare array, a {databases:[...]} object, or the same nested under a data
// or result wrapper, with entries that are plain strings or objects keyed by
// name, db, or the legacy "iox::database" form. The matchers below are tried
// in a fixed priority order; the first success wins, and no match is a loud
// malformed-response failure, never an empty list.

type databaseShapeMatcher func(interface{}) ([]Database, bool)

var databaseShapeMatchers = []databaseShapeMatcher{
	matchBareDatabaseArray,
	matchKeyedDatabaseList,
	matchWrappedDatabaseList("data"),
	matchWrappedDatabaseList("result"),
}

// normalizeDatabaseList probes the decoded list response against the known
// shapes.
func normalizeDatabaseList(decoded interface{}) ([]Database, error) {
	for _, match := range databaseShapeMatchers {
		if dbs, ok := match(decoded); ok {
			return dbs, nil
		}
	}
	return nil, bridgeerrors.New(bridgeerrors.ErrorTypeMalformedResponse,
		"database list response shape not recognized")
}

func matchBareDatabaseArray(decoded interface{}) ([]Database, bool) {
	entries, ok := decoded.([]interface{})
	if !ok {
		return nil, false
	}
	return databaseEntries(entries)
}

func matchKeyedDatabaseList(decoded interface{}) ([]Database, bool) {
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, false
	}
	entries, ok := obj["databases"].([]interface{})
	if !ok {
		return nil, false
	}
	return databaseEntries(entries)
}

func matchWrappedDatabaseList(key string) databaseShapeMatcher {
	return func(decoded interface{}) ([]Database, bool) {
		obj, ok := decoded.(map[string]interface{})
		if !ok {
			return nil, false
		}
		inner, ok := obj[key]
		if !ok {
			return nil, false
		}
		if dbs, ok := matchBareDatabaseArray(inner); ok {
			return dbs, true
		}
		return matchKeyedDatabaseList(inner)
	}
}

// databaseEntries normalizes individual list entries. An empty list is a
// valid match; a list with any unrecognized entry is not.
func databaseEntries(entries []interface{}) ([]Database, bool) {
	dbs := make([]Database, 0, len(entries))
	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			dbs = append(dbs, Database{Name: v})
		case map[string]interface{}:
			name, ok := databaseEntryName(v)
			if !ok {
				return nil, false
			}
			dbs = append(dbs, Database{Name: name})
		default:
			return nil, false
		}
	}
	return dbs, true
}

func databaseEntryName(entry map[string]interface{}) (string, bool) {
	for _, key := range []string{"name", "db", "iox::database"} {
		if name, ok := entry[key].(string); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
