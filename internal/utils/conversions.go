package utils

import "fmt"

// ToStringSlice renders each element as a string. Nil elements are skipped.
func ToStringSlice(slice []any) []string {
	if len(slice) == 0 {
		return nil
	}
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		switch s := v.(type) {
		case nil:
		case string:
			out = append(out, s)
		default:
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}
