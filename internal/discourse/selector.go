package discourse

import "fmt"

// SelectorKind identifies which topic list page a feed load targets.
type SelectorKind int

const (
	SelectLatest SelectorKind = iota
	SelectTop
	SelectCategory
)

// Selector maps a feed choice to a topic list endpoint.
type Selector struct {
	Kind         SelectorKind
	CategorySlug string
	CategoryID   int64
}

// Latest selects the /latest.json page.
func Latest() Selector { return Selector{Kind: SelectLatest} }

// Top selects the /top.json page.
func Top() Selector { return Selector{Kind: SelectTop} }

// Category selects one category page.
func Category(slug string, id int64) Selector {
	return Selector{Kind: SelectCategory, CategorySlug: slug, CategoryID: id}
}

// Endpoint resolves the selector to its JSON endpoint path.
func (s Selector) Endpoint() (string, error) {
	switch s.Kind {
	case SelectLatest:
		return "/latest.json", nil
	case SelectTop:
		return "/top.json", nil
	case SelectCategory:
		if s.CategorySlug == "" || s.CategoryID == 0 {
			return "", fmt.Errorf("category selector requires slug and id")
		}
		return fmt.Sprintf("/c/%s/%d.json", s.CategorySlug, s.CategoryID), nil
	default:
		return "", fmt.Errorf("unknown selector kind %d", s.Kind)
	}
}

// String describes the selector for logging.
func (s Selector) String() string {
	switch s.Kind {
	case SelectLatest:
		return "latest"
	case SelectTop:
		return "top"
	case SelectCategory:
		return fmt.Sprintf("category/%s/%d", s.CategorySlug, s.CategoryID)
	default:
		return "unknown"
	}
}
