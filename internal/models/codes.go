package models

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
)

var cohortCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_.\-]{0,31}$`)

// GradeCode identifies a grade cohort (e.g. "3A"). Values are opaque: no
// foreign key to campus grades is enforced.
type GradeCode string

// GroupCode identifies a student group inside a grade.
type GroupCode string

// ParseGradeCode normalises and validates a raw grade code.
func ParseGradeCode(raw string) (GradeCode, error) {
	code, err := normaliseCohortCode(raw)
	if err != nil {
		return "", fmt.Errorf("grade code: %w", err)
	}
	return GradeCode(code), nil
}

// ParseGroupCode normalises and validates a raw group code.
func ParseGroupCode(raw string) (GroupCode, error) {
	code, err := normaliseCohortCode(raw)
	if err != nil {
		return "", fmt.Errorf("group code: %w", err)
	}
	return GroupCode(code), nil
}

// ValidCohortCode reports whether raw is an acceptable grade or group code.
func ValidCohortCode(raw string) bool {
	_, err := normaliseCohortCode(raw)
	return err == nil
}

func normaliseCohortCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", fmt.Errorf("empty value")
	}
	if !cohortCodePattern.MatchString(code) {
		return "", fmt.Errorf("invalid value %q", raw)
	}
	return code, nil
}

// GradeCodes is a set-like list of grade codes stored as text[].
type GradeCodes []GradeCode

// NewGradeCodes parses, deduplicates and sorts raw grade codes.
func NewGradeCodes(raw []string) (GradeCodes, error) {
	seen := make(map[GradeCode]struct{}, len(raw))
	codes := make(GradeCodes, 0, len(raw))
	for _, item := range raw {
		code, err := ParseGradeCode(item)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

// Contains reports whether the code is in the list.
func (g GradeCodes) Contains(code GradeCode) bool {
	for _, item := range g {
		if item == code {
			return true
		}
	}
	return false
}

// Strings returns the codes as plain strings.
func (g GradeCodes) Strings() []string {
	out := make([]string, len(g))
	for i, code := range g {
		out[i] = string(code)
	}
	return out
}

// Equal compares two lists as sets.
func (g GradeCodes) Equal(other GradeCodes) bool {
	return sameStringSet(g.Strings(), other.Strings())
}

// Minus returns codes present in g but not in other, preserving order.
func (g GradeCodes) Minus(other GradeCodes) GradeCodes {
	var out GradeCodes
	for _, code := range g {
		if !other.Contains(code) {
			out = append(out, code)
		}
	}
	return out
}

// Scan implements sql.Scanner for text[] columns.
func (g *GradeCodes) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(GradeCodes, len(arr))
	for i, item := range arr {
		out[i] = GradeCode(item)
	}
	*g = out
	return nil
}

// Value implements driver.Valuer for text[] columns.
func (g GradeCodes) Value() (driver.Value, error) {
	return pq.StringArray(g.Strings()).Value()
}

// GroupCodes is a set-like list of group codes stored as text[].
type GroupCodes []GroupCode

// NewGroupCodes parses, deduplicates and sorts raw group codes.
func NewGroupCodes(raw []string) (GroupCodes, error) {
	seen := make(map[GroupCode]struct{}, len(raw))
	codes := make(GroupCodes, 0, len(raw))
	for _, item := range raw {
		code, err := ParseGroupCode(item)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

// Contains reports whether the code is in the list.
func (g GroupCodes) Contains(code GroupCode) bool {
	for _, item := range g {
		if item == code {
			return true
		}
	}
	return false
}

// Strings returns the codes as plain strings.
func (g GroupCodes) Strings() []string {
	out := make([]string, len(g))
	for i, code := range g {
		out[i] = string(code)
	}
	return out
}

// Equal compares two lists as sets.
func (g GroupCodes) Equal(other GroupCodes) bool {
	return sameStringSet(g.Strings(), other.Strings())
}

// Minus returns codes present in g but not in other, preserving order.
func (g GroupCodes) Minus(other GroupCodes) GroupCodes {
	var out GroupCodes
	for _, code := range g {
		if !other.Contains(code) {
			out = append(out, code)
		}
	}
	return out
}

// Scan implements sql.Scanner for text[] columns.
func (g *GroupCodes) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(GroupCodes, len(arr))
	for i, item := range arr {
		out[i] = GroupCode(item)
	}
	*g = out
	return nil
}

// Value implements driver.Valuer for text[] columns.
func (g GroupCodes) Value() (driver.Value, error) {
	return pq.StringArray(g.Strings()).Value()
}

func sameStringSet(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, item := range a {
		left[item] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, item := range b {
		right[item] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for item := range left {
		if _, ok := right[item]; !ok {
			return false
		}
	}
	return true
}
