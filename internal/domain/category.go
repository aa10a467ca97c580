package domain

import "strings"

// Expense categories.
const (
	CategoryFood          = "Food"
	CategoryTransport     = "Transport"
	CategoryShopping      = "Shopping"
	CategoryBills         = "Bills"
	CategoryEntertainment = "Entertainment"
	CategoryHealth        = "Health"
	CategoryEducation     = "Education"
	CategoryOther         = "Other"
)

// Income categories.
const (
	CategorySalary     = "Salary"
	CategoryFreelance  = "Freelance"
	CategoryInvestment = "Investment"
	CategoryGift       = "Gift"
)

var categoryAliases = map[string]string{
	"food":            CategoryFood,
	"food & drinks":   CategoryFood,
	"food and drinks": CategoryFood,
	"drinks":          CategoryFood,
	"transport":       CategoryTransport,
	"transportation":  CategoryTransport,
	"shopping":        CategoryShopping,
	"bills":           CategoryBills,
	"bill":            CategoryBills,
	"utilities":       CategoryBills,
	"entertainment":   CategoryEntertainment,
	"health":          CategoryHealth,
	"healthcare":      CategoryHealth,
	"education":       CategoryEducation,
	"salary":          CategorySalary,
	"freelance":       CategoryFreelance,
	"investment":      CategoryInvestment,
	"gift":            CategoryGift,
	"other":           CategoryOther,
}

var expenseCategories = map[string]bool{
	CategoryFood: true, CategoryTransport: true, CategoryShopping: true, CategoryBills: true,
	CategoryEntertainment: true, CategoryHealth: true, CategoryEducation: true, CategoryOther: true,
}

var incomeCategories = map[string]bool{
	CategorySalary: true, CategoryFreelance: true, CategoryInvestment: true, CategoryGift: true, CategoryOther: true,
}

// NormalizeCategory maps a free-form label onto the category set of t.
// Unknown or mismatched labels become Other.
func NormalizeCategory(t TxType, label string) string {
	canon, ok := categoryAliases[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return CategoryOther
	}
	if t == Income && !incomeCategories[canon] {
		return CategoryOther
	}
	if t == Expense && !expenseCategories[canon] {
		return CategoryOther
	}
	return canon
}
