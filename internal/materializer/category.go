package materializer

import "strings"

// Ordered so that more specific keywords win
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"uber eats", "Food"},
	{"zomato", "Food"},
	{"swiggy", "Food"},
	{"dominos", "Food"},
	{"mcdonald", "Food"},
	{"starbucks", "Food"},
	{"restaurant", "Food"},
	{"cafe", "Food"},
	{"chai", "Food"},
	{"bigbasket", "Groceries"},
	{"big bazaar", "Groceries"},
	{"blinkit", "Groceries"},
	{"zepto", "Groceries"},
	{"dmart", "Groceries"},
	{"grocer", "Groceries"},
	{"mart", "Groceries"},
	{"uber", "Transportation"},
	{"ola", "Transportation"},
	{"rapido", "Transportation"},
	{"irctc", "Travel"},
	{"makemytrip", "Travel"},
	{"indigo", "Travel"},
	{"airbnb", "Travel"},
	{"fuel", "Transportation"},
	{"petrol", "Transportation"},
	{"netflix", "Entertainment"},
	{"spotify", "Entertainment"},
	{"bookmyshow", "Entertainment"},
	{"hotstar", "Entertainment"},
	{"amazon", "Shopping"},
	{"flipkart", "Shopping"},
	{"myntra", "Shopping"},
	{"ajio", "Shopping"},
	{"books", "Shopping"},
	{"pharmacy", "Healthcare"},
	{"apollo", "Healthcare"},
	{"hospital", "Healthcare"},
	{"airtel", "Utilities"},
	{"jio", "Utilities"},
	{"electricity", "Utilities"},
}

const defaultCategory = "Other"

// Categorize maps a merchant name to an expense category by keyword
func Categorize(merchant string) string {
	lower := strings.ToLower(merchant)
	words := strings.Fields(lower)
	for _, kw := range categoryKeywords {
		if strings.Contains(kw.keyword, " ") || len(kw.keyword) > 3 {
			if strings.Contains(lower, kw.keyword) {
				return kw.category
			}
			continue
		}
		// short keywords must be a whole word
		for _, w := range words {
			if w == kw.keyword {
				return kw.category
			}
		}
	}
	return defaultCategory
}
