package repository

import (
    "database/sql"
    "time"
)

// Helpers converting between nullable columns and pointer fields.

func strPtr(ns sql.NullString) *string {
    if !ns.Valid {
        return nil
    }
    s := ns.String
    return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
    if !nf.Valid {
        return nil
    }
    f := nf.Float64
    return &f
}

func timePtr(nt sql.NullTime) *time.Time {
    if !nt.Valid {
        return nil
    }
    t := nt.Time.UTC()
    return &t
}

func uintPtr(ni sql.NullInt64) *uint64 {
    if !ni.Valid {
        return nil
    }
    u := uint64(ni.Int64)
    return &u
}

func nullStr(s *string) sql.NullString {
    if s == nil {
        return sql.NullString{}
    }
    return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
    if f == nil {
        return sql.NullFloat64{}
    }
    return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullUint(u *uint64) sql.NullInt64 {
    if u == nil {
        return sql.NullInt64{}
    }
    return sql.NullInt64{Int64: int64(*u), Valid: true}
}

// dateOnly truncates a timestamp to its UTC calendar day, the format of
// DATE columns.
func dateOnly(t time.Time) string {
    return t.UTC().Format("2006-01-02")
}
