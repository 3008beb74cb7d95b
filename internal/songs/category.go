package songs

// Category is a learning stage. The ID is what songs store and must never
// change; the slug is used in URLs and the label for display.
type Category struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

var categories = []Category{
	{ID: "currently-working", Slug: "currently-working", Label: "Currently Working"},
	{ID: "backlog", Slug: "backlog", Label: "Backlog"},
	{ID: "learned", Slug: "learned", Label: "Learned"},
}

// Categories returns all categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func CategoryByID(id string) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func CategoryBySlug(slug string) (Category, bool) {
	for _, c := range categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}

// DefaultCategory is assigned to songs created without a category.
func DefaultCategory() Category {
	return categories[0]
}
