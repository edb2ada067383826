package analytics

import "strings"

const (
	CategoryDisease = "disease"
	CategoryYield   = "yield"
	CategoryWeather = "weather"
	CategorySoil    = "soil"
	CategoryGeneral = "general"

	DefaultLanguage = "en"
)

var cannedAnswers = map[string]string{
	CategoryDisease: "Based on the symptoms you described, it appears to be a fungal infection. I recommend applying organic fungicide and ensuring proper drainage.",
	CategoryYield:   "Based on current weather conditions and your farming practices, you can expect approximately 25-30 quintals per hectare.",
	CategoryWeather: "The weather forecast shows moderate rainfall in the next week. It's a good time for planting.",
	CategorySoil:    "Your soil pH seems optimal for the crops you're planning. Consider adding organic compost for better nutrition.",
	CategoryGeneral: "I'm here to help with all your farming questions. Feel free to ask about crops, diseases, weather, or soil management.",
}

// keyword order decides ties: a query mentioning both pests and rain is a disease question.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{CategoryDisease, []string{"disease", "pest"}},
	{CategoryYield, []string{"yield", "production"}},
	{CategoryWeather, []string{"weather", "rain"}},
	{CategorySoil, []string{"soil", "fertilizer"}},
}

// Answer is the assistant's canned reply. The language is accepted but every
// answer is English for now.
func Answer(query, language, category string) string {
	return cannedAnswers[ResolveCategory(query, category)]
}

// ResolveCategory infers a blank category from the query and maps unknown
// categories to general.
func ResolveCategory(query, category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return InferCategory(query)
	}
	if _, ok := cannedAnswers[category]; ok {
		return category
	}
	return CategoryGeneral
}

// InferCategory picks a category from keywords in the query.
func InferCategory(query string) string {
	q := strings.ToLower(query)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(q, w) {
				return ck.category
			}
		}
	}
	return CategoryGeneral
}
