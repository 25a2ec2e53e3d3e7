package internal

import "github.com/ValentinKolb/dBandit/lib/store"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTHGet      QueryType = iota // Retrieve a single hash field.
	QueryTHGetAll                    // Retrieve a whole hash.
	QueryTHGetMulti                  // Retrieve fields of many hashes at once.
	QueryTSMembers                   // Retrieve all members of a set.
	QueryTSIsMember                  // Check set membership.
	QueryTSCard                      // Count the members of a set.
	QueryTHas                        // Check if a key exists.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTHGet:
		return "HGet"
	case QueryTHGetAll:
		return "HGetAll"
	case QueryTHGetMulti:
		return "HGetMulti"
	case QueryTSMembers:
		return "SMembers"
	case QueryTSIsMember:
		return "SIsMember"
	case QueryTSCard:
		return "SCard"
	case QueryTHas:
		return "Has"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type  QueryType        // The type of Query to perform.
	Key   string           // The key for the Query (empty for some queries).
	Field string           // Hash field or set member (HGet, SIsMember).
	Refs  []store.FieldRef // Addressed fields (HGetMulti).
}

// QueryResult is the result of a QueryTHGet operation.
// All other query results are primitive types or predefined structs
// (bool, int64, []string, map[string]string, []store.FieldValue, db.DatabaseInfo).
type QueryResult struct {
	Ok    bool
	Value string
}
