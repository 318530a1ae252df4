package domain

// Step is the position of a user within the guided ordering flow.
type Step string

const (
	StepMenu              Step = "menu"
	StepWaitingURL        Step = "waiting_url"
	StepCategorySelection Step = "category_selection"
	StepSizeSelection     Step = "size_selection"
)

// SessionContext accumulates selections across steps. Fields are filled in
// order: product, category, variant, calculation.
type SessionContext struct {
	URL         string
	ProductRef  string
	Product     *ProductSnapshot
	Category    Category
	Variant     *Variant
	Calculation *Calculation
}

// Session is the per-user conversational state.
type Session struct {
	Step    Step
	Context SessionContext
}

// NewSession returns the default menu session.
func NewSession() Session {
	return Session{Step: StepMenu}
}

// Clone returns a deep copy so stored sessions are never aliased.
func (s Session) Clone() Session {
	out := s
	if s.Context.Product != nil {
		p := *s.Context.Product
		p.Variants = append([]Variant(nil), s.Context.Product.Variants...)
		out.Context.Product = &p
	}
	if s.Context.Variant != nil {
		v := *s.Context.Variant
		out.Context.Variant = &v
	}
	if s.Context.Calculation != nil {
		c := *s.Context.Calculation
		c.Product.Variants = append([]Variant(nil), s.Context.Calculation.Product.Variants...)
		out.Context.Calculation = &c
	}
	return out
}
