package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Repo wraps the database with typed accessors.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeStrings(ss []string) any {
	if len(ss) == 0 {
		return nil
	}
	data, err := json.Marshal(ss)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeStrings(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
