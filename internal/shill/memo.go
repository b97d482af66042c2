package shill

import "regexp"

// handlePattern matches an @ followed by 1-50 word characters.
var handlePattern = regexp.MustCompile(`@(\w{1,50})`)

// ExtractHandle pulls the first social handle out of a memo, including the
// leading @. Returns "" when the memo carries none.
func ExtractHandle(memo string) string {
	match := handlePattern.FindString(memo)
	return match
}
