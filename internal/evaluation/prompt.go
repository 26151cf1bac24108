package evaluation

import (
	"sort"
	"strconv"
	"strings"

	_ "embed"
)

//go:embed prompt.md
var promptTemplate string

// BuildPrompt renders the scoring instructions for item. Field values are
// interpolated verbatim; the output is stable for equal inputs.
func BuildPrompt(item *QueryItem) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Query: \"{{QUERY}}\"\nItem Title: \"{{ITEM_TITLE}}\"\nItem Description: \"{{ITEM_DESCRIPTION}}\"\n" +
			"Item Category: \"{{ITEM_CATEGORY}}\"\nItem Attributes: {{ITEM_ATTRIBUTES}}\n{{ITEM_PRICE_LINE}}\n" +
			"Respond with exactly this format:\nScore: [number 1-8]\nConfidence: [number 0.0-1.0]\nReason: [brief explanation]\n"
	}

	// a single pass keeps placeholders inside user text untouched
	replacer := strings.NewReplacer(
		"{{QUERY}}", item.Query,
		"{{ITEM_TITLE}}", item.ItemTitle,
		"{{ITEM_DESCRIPTION}}", item.ItemDescription,
		"{{ITEM_CATEGORY}}", item.ItemCategory,
		"{{ITEM_ATTRIBUTES}}", formatAttributes(item.ItemAttributes),
		"{{ITEM_PRICE_LINE}}", formatPriceLine(item.ItemPrice),
	)

	return replacer.Replace(template)
}

func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("'")
		b.WriteString(k)
		b.WriteString("': '")
		b.WriteString(attrs[k])
		b.WriteString("'")
	}
	b.WriteString("}")

	return b.String()
}

func formatPriceLine(price *float64) string {
	if price == nil {
		return ""
	}
	return "Item Price: " + strconv.FormatFloat(*price, 'f', -1, 64) + "\n"
}
