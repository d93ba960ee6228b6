package draft

// Card identifies a draftable card. Two cards are the same card iff their
// set code and name match.
type Card struct {
	SetCode string `json:"set_code"`
	Name    string `json:"name"`
}

func (c Card) String() string {
	return c.Name + " [" + c.SetCode + "]"
}
