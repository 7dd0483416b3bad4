package app

import "strings"

// Market categories used for alert grouping.
const (
	CategoryPolitics      = "politics"
	CategorySports        = "sports"
	CategoryCrypto        = "crypto"
	CategoryBusiness      = "business"
	CategoryScience       = "science"
	CategoryEntertainment = "entertainment"
	CategoryWeather       = "weather"
	CategoryOther         = "other"
)

// tagCategories maps well-known event tags to a category. Tags win
// over keyword matching because they come straight from the venue.
var tagCategories = map[string]string{
	"politics":      CategoryPolitics,
	"elections":     CategoryPolitics,
	"geopolitics":   CategoryPolitics,
	"sports":        CategorySports,
	"nfl":           CategorySports,
	"nba":           CategorySports,
	"mlb":           CategorySports,
	"soccer":        CategorySports,
	"crypto":        CategoryCrypto,
	"bitcoin":       CategoryCrypto,
	"ethereum":      CategoryCrypto,
	"business":      CategoryBusiness,
	"economy":       CategoryBusiness,
	"fed":           CategoryBusiness,
	"science":       CategoryScience,
	"ai":            CategoryScience,
	"climate":       CategoryWeather,
	"weather":       CategoryWeather,
	"pop-culture":   CategoryEntertainment,
	"entertainment": CategoryEntertainment,
	"movies":        CategoryEntertainment,
	"music":         CategoryEntertainment,
}

// titleKeywords is the fallback when no tag matches. First hit wins,
// so more specific words come first.
var titleKeywords = []struct {
	word     string
	category string
}{
	{"bitcoin", CategoryCrypto},
	{"ethereum", CategoryCrypto},
	{"btc", CategoryCrypto},
	{"eth", CategoryCrypto},
	{"solana", CategoryCrypto},
	{"election", CategoryPolitics},
	{"president", CategoryPolitics},
	{"senate", CategoryPolitics},
	{"congress", CategoryPolitics},
	{"minister", CategoryPolitics},
	{"super bowl", CategorySports},
	{"world cup", CategorySports},
	{"championship", CategorySports},
	{"playoffs", CategorySports},
	{"fed ", CategoryBusiness},
	{"rate cut", CategoryBusiness},
	{"rate hike", CategoryBusiness},
	{"gdp", CategoryBusiness},
	{"inflation", CategoryBusiness},
	{"ipo", CategoryBusiness},
	{"hurricane", CategoryWeather},
	{"temperature", CategoryWeather},
	{"rainfall", CategoryWeather},
	{"oscars", CategoryEntertainment},
	{"grammys", CategoryEntertainment},
	{"box office", CategoryEntertainment},
	{"spacex", CategoryScience},
	{"openai", CategoryScience},
	{"nasa", CategoryScience},
}

// ClassifyMarket buckets a market into a category from its tags,
// falling back to title keywords, then "other".
func ClassifyMarket(title string, tags []string) string {
	for _, tag := range tags {
		if cat, ok := tagCategories[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return cat
		}
	}

	lower := strings.ToLower(title)
	for _, kw := range titleKeywords {
		if strings.Contains(lower, kw.word) {
			return kw.category
		}
	}

	return CategoryOther
}
