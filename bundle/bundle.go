// Package bundle merges resolved stylesheets into a single artifact.
package bundle

import "cssmc/css"

// Merge concatenates sheets in the given order into a new stylesheet named
// source. Rules are neither reordered nor deduplicated, so for conflicting
// selectors the later sheet wins by normal cascade. To keep the result
// valid CSS the first @charset is moved to the very top (others are
// dropped) and @import rules of all sheets are moved in front of other
// rules keeping their relative order.
//
// Merge takes ownership of items of all sheets.
func Merge(source string, sheets ...*css.Stylesheet) *css.Stylesheet {
	var (
		charset *css.Item
		imports []css.Item
		body    []css.Item
	)
	for _, s := range sheets {
		if s == nil {
			continue
		}
		for _, item := range s.Items {
			if at := item.AtRule; at != nil {
				switch at.Name {
				case "charset":
					if charset == nil {
						charset = &item
					}
					continue
				case "import":
					imports = append(imports, item)
					continue
				}
			}
			body = append(body, item)
		}
	}

	out := &css.Stylesheet{Source: source}
	if charset != nil {
		out.Items = append(out.Items, *charset)
	}
	out.Items = append(out.Items, imports...)
	out.Items = append(out.Items, body...)
	return out
}
