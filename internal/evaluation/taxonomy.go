package evaluation

const (
	MinScore = 0
	MaxScore = 8

	// InvalidScoreCode marks a result whose score could not be mapped.
	InvalidScoreCode = "Error: Invalid Score"
)

var reasonCodes = map[int]string{
	8: "Excellent",
	7: "Good",
	6: "Okay",
	5: "Informational",
	4: "Bad",
	3: "Nonsensical",
	2: "Embarrassing",
	1: "UTD (Unable To Determine)",
	0: "PDNL (Page Does Not Load)",
}

// ReasonCodeFor maps a clamped relevance score onto the quality taxonomy.
// A miss means clamping and the table disagree and is always an error.
func ReasonCodeFor(score int) (string, error) {
	code, ok := reasonCodes[score]
	if !ok {
		return InvalidScoreCode, &InvalidScoreError{Score: score}
	}
	return code, nil
}
