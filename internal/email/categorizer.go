package email

import "strings"

// Rule maps a category to the local-part keywords that select it.
type Rule struct {
	Category Category
	Keywords []string
}

// DefaultRules returns the keyword table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{CategorySales, []string{"sales", "business", "commercial", "revenue", "partnerships", "enterprise", "accounts"}},
		{CategorySupport, []string{"support", "help", "service", "assistance", "helpdesk", "care", "ticket"}},
		{CategoryInfo, []string{"info", "contact", "hello", "general", "inquiry", "questions"}},
		{CategoryAdmin, []string{"admin", "webmaster", "postmaster", "system", "technical", "it", "tech"}},
		{CategoryMarketing, []string{"marketing", "promo", "newsletter", "campaign", "social", "media", "pr"}},
		{CategoryHR, []string{"hr", "human", "resources", "recruitment", "careers", "jobs", "talent"}},
	}
}

// personalSeparators mark a first.last style local part.
const personalSeparators = "._-"

// Categorizer assigns exactly one Category to an address.
type Categorizer struct {
	rules []Rule
}

// NewCategorizer builds a Categorizer. Rules are evaluated in order and the
// first keyword hit wins.
func NewCategorizer(rules []Rule) *Categorizer {
	cp := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		cp = append(cp, Rule{Category: r.Category, Keywords: kw})
	}
	return &Categorizer{rules: cp}
}

// NewDefaultCategorizer returns a Categorizer over DefaultRules.
func NewDefaultCategorizer() *Categorizer {
	return NewCategorizer(DefaultRules())
}

// Categorize classifies addr by its local part.
func (c *Categorizer) Categorize(addr string) Category {
	local := strings.ToLower(LocalPart(strings.TrimSpace(addr)))
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(local, k) {
				return r.Category
			}
		}
	}
	if strings.ContainsAny(local, personalSeparators) {
		return CategoryPersonal
	}
	return CategoryGeneral
}

// CategorizeAll classifies each address, keyed by canonical form.
func (c *Categorizer) CategorizeAll(addrs []string) map[string]Category {
	out := make(map[string]Category, len(addrs))
	for _, a := range addrs {
		out[Canonical(a)] = c.Categorize(a)
	}
	return out
}
