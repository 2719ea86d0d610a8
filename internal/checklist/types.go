package checklist

// Item is one question of a checklist. Inactive items are kept for history
// but are not required for completing an audit.
type Item struct {
	ID       string `json:"id"`
	Section  string `json:"section"`
	Text     string `json:"text"`
	Position int    `json:"position"`
	Active   bool   `json:"active"`
}

// Checklist is a named, ordered set of items audits are answered against.
type Checklist struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// ActiveIDs returns the ids of active items in checklist order.
func (c *Checklist) ActiveIDs() []string {
	var ids []string
	for _, it := range c.Items {
		if it.Active {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
