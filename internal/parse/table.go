package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`(\d+)\s*$`)
	prefixRe = regexp.MustCompile(`(?i)^(table|tbl|t)\s*[-#]?\s*$`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// TableName holds the structured parts of a table's display name.
type TableName struct {
	Area   string
	Number int
}

// ParseTableName splits a raw table name such as "T3", "Table 12", "Patio-2"
// or "VIP #1" into an area and a number. Generic prefixes (T, Table) collapse
// into the empty area. Names without a trailing number keep Number 0.
func ParseTableName(raw string) TableName {
	// 0) "#" and "-" act as separators
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer("#", " ", "-", " ", "_", " ").Replace(s)
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))

	// 1) trailing number
	number := 0
	area := s
	if loc := numberRe.FindStringSubmatchIndex(s); loc != nil {
		if n, err := strconv.Atoi(s[loc[2]:loc[3]]); err == nil {
			number = n
			area = strings.TrimSpace(s[:loc[0]])
		}
	}

	// 2) "T3" / "Table 3" are the main room
	if area == "" || prefixRe.MatchString(area) {
		area = ""
	}

	return TableName{Area: strings.ToLower(area), Number: number}
}

// Less orders table names by area, then number, then raw name.
func Less(a, b string) bool {
	pa, pb := ParseTableName(a), ParseTableName(b)
	if pa.Area != pb.Area {
		return pa.Area < pb.Area
	}
	if pa.Number != pb.Number {
		return pa.Number < pb.Number
	}
	return a < b
}
