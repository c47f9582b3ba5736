package conversation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------- package-level compiled regexes ----------

var (
	emailRE  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	budgetRE = regexp.MustCompile(`(?i)\$\s?\d[\d,]*(?:\.\d+)?\s*(?:k\b)?|\b\d[\d,]*\s*(?:dollars|bucks|usd)\b|\b\d+\s*k\b\s*(?:per month|a month|monthly|budget)?`)
	introRE  = regexp.MustCompile(`(?i)(?:my name is|i'?m|i am|this is|call me|name'?s)\s+([\p{L}][\p{L}'\-]*(?:\s+[\p{L}][\p{L}'\-]*)?)`)
)

// ---------- need category patterns ----------

// needCategoryPatterns maps user-facing phrases to canonical need categories.
// Ordered by specificity so longer phrases match first. A generic "business"
// mention is deliberately absent: it does not satisfy the category fact, so
// the cold responder still asks the clarifying question.
var needCategoryPatterns = []struct {
	pattern  string
	category string
}{
	{"social media marketing", "social_media"},
	{"social media management", "social_media"},
	{"instagram ads", "advertising"},
	{"facebook ads", "advertising"},
	{"google ads", "advertising"},
	{"tiktok ads", "advertising"},
	{"paid ads", "advertising"},
	{"ad campaign", "advertising"},
	{"run ads", "advertising"},
	{"advertising", "advertising"},
	{"social media", "social_media"},
	{"instagram", "social_media"},
	{"facebook page", "social_media"},
	{"more followers", "social_media"},
	{"landing page", "website"},
	{"new website", "website"},
	{"web site", "website"},
	{"website", "website"},
	{"online store", "website"},
	{"seo", "seo"},
	{"search ranking", "seo"},
	{"rank on google", "seo"},
	{"ai agent", "automation"},
	{"chatbot", "automation"},
	{"chat bot", "automation"},
	{"automation", "automation"},
	{"automate", "automation"},
	{"appointment reminders", "automation"},
	{"follow-up texts", "automation"},
	{"email marketing", "email_marketing"},
	{"newsletter", "email_marketing"},
	{"email campaign", "email_marketing"},
	{"branding", "branding"},
	{"logo", "branding"},
	{"rebrand", "branding"},
	{"more customers", "lead_generation"},
	{"more clients", "lead_generation"},
	{"more leads", "lead_generation"},
	{"lead generation", "lead_generation"},
	{"get leads", "lead_generation"},
	{"more bookings", "lead_generation"},
	{"grow my", "lead_generation"},
	{"marketing", "marketing"},
	{"promote", "marketing"},
}

// ---------- business type patterns ----------

var businessTypePatterns = []struct {
	pattern string
	name    string
}{
	{"restaurant", "restaurant"},
	{"food truck", "restaurant"},
	{"cafe", "restaurant"},
	{"coffee shop", "restaurant"},
	{"bakery", "restaurant"},
	{"salon", "salon"},
	{"barbershop", "salon"},
	{"barber shop", "salon"},
	{"nail salon", "salon"},
	{"spa", "salon"},
	{"gym", "fitness"},
	{"fitness studio", "fitness"},
	{"yoga studio", "fitness"},
	{"crossfit", "fitness"},
	{"real estate", "real_estate"},
	{"realtor", "real_estate"},
	{"property management", "real_estate"},
	{"dental", "healthcare"},
	{"dentist", "healthcare"},
	{"chiropract", "healthcare"},
	{"clinic", "healthcare"},
	{"law firm", "professional_services"},
	{"lawyer", "professional_services"},
	{"attorney", "professional_services"},
	{"accounting", "professional_services"},
	{"insurance agency", "professional_services"},
	{"roofing", "home_services"},
	{"plumbing", "home_services"},
	{"landscaping", "home_services"},
	{"hvac", "home_services"},
	{"cleaning company", "home_services"},
	{"contractor", "home_services"},
	{"boutique", "retail"},
	{"retail store", "retail"},
	{"online shop", "ecommerce"},
	{"ecommerce", "ecommerce"},
	{"e-commerce", "ecommerce"},
	{"shopify", "ecommerce"},
	{"agency", "agency"},
	{"startup", "startup"},
}

// ---------- urgency keywords ----------

var (
	highUrgencyTerms = []string{
		"asap", "urgent", "urgently", "right away", "immediately", "today",
		"this week", "as soon as possible", "losing customers", "losing money",
		"before the end of", "can't wait", "cant wait",
	}
	lowUrgencyTerms = []string{
		"no rush", "not urgent", "whenever", "just looking", "just browsing",
		"sometime next year", "in a few months", "down the road", "researching",
	}
)

// ---------- purchase intent keywords ----------

var purchaseIntentTerms = []string{
	"how much", "pricing", "price", "cost", "quote", "sign up", "signup",
	"get started", "ready to start", "want to start", "want to hire",
	"let's do it", "lets do it", "book a call", "schedule a call",
	"when can we", "interested in working",
}

// collectUserMessages concatenates user-authored message text, returning a
// lowercased copy for matching and the original casing for name extraction.
func collectUserMessages(history []Message) (lowercase string, original string) {
	var lowerBuilder strings.Builder
	var originalBuilder strings.Builder
	for _, msg := range history {
		if msg.Role != RoleUser {
			continue
		}
		lowerBuilder.WriteString(strings.ToLower(msg.Text))
		lowerBuilder.WriteString(" ")
		originalBuilder.WriteString(msg.Text)
		originalBuilder.WriteString(" ")
	}
	return lowerBuilder.String(), originalBuilder.String()
}

// Extract scans the entire merged history, derives structured facts, merges
// them monotonically into priorFacts, and scores the result. It is a pure
// function of its inputs: same history and prior facts, same output.
func Extract(history []Message, priorFacts Facts) (Facts, int) {
	extracted := Facts{}
	userMessages, userMessagesOriginal := collectUserMessages(history)

	if name := findName(userMessagesOriginal); name != "" {
		extracted[FactName] = name
	}
	if category := matchFirst(userMessages, needCategoryPatterns); category != "" {
		extracted[FactNeedCategory] = category
	}
	if business := matchBusinessType(userMessages); business != "" {
		extracted[FactBusinessType] = business
	}
	if budget := budgetRE.FindString(userMessages); budget != "" {
		extracted[FactBudget] = strings.TrimSpace(budget)
	}
	if email := emailRE.FindString(userMessagesOriginal); email != "" {
		extracted[FactEmail] = email
	}
	if urgency := detectUrgency(userMessages); urgency != "" {
		extracted[FactUrgency] = urgency
	}

	facts := MergeFacts(priorFacts, extracted)
	return facts, Score(facts, history)
}

// Score computes the qualification score from accumulated facts and the
// merged history. Deterministic and documented so it can be recomputed:
//
//	baseline 1
//	+2 explicit purchase intent anywhere in the user's messages
//	+2 need category known
//	+2 budget known
//	+1 business type known
//	+1 high urgency
//	+1 sustained engagement (four or more user messages)
//
// clamped to [0, 10].
func Score(facts Facts, history []Message) int {
	score := 1

	userMessages, _ := collectUserMessages(history)
	for _, term := range purchaseIntentTerms {
		if strings.Contains(userMessages, term) {
			score += 2
			break
		}
	}

	if facts.Has(FactNeedCategory) {
		score += 2
	}
	if facts.Has(FactBudget) {
		score += 2
	}
	if facts.Has(FactBusinessType) {
		score++
	}
	if facts[FactUrgency] == "high" {
		score++
	}

	userCount := 0
	for _, msg := range history {
		if msg.Role == RoleUser {
			userCount++
		}
	}
	if userCount >= 4 {
		score++
	}

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score
}

func matchFirst(text string, patterns []struct{ pattern, category string }) string {
	for _, p := range patterns {
		if strings.Contains(text, p.pattern) {
			return p.category
		}
	}
	return ""
}

func matchBusinessType(text string) string {
	for _, p := range businessTypePatterns {
		if strings.Contains(text, p.pattern) {
			return p.name
		}
	}
	return ""
}

func detectUrgency(text string) string {
	for _, term := range highUrgencyTerms {
		if strings.Contains(text, term) {
			return "high"
		}
	}
	for _, term := range lowUrgencyTerms {
		if strings.Contains(text, term) {
			return "low"
		}
	}
	return ""
}

// ---------- name extraction ----------

func findName(original string) string {
	matches := introRE.FindAllStringSubmatch(normalizeQuotes(original), -1)
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		if name := cleanName(match[1]); name != "" {
			return name
		}
	}
	return ""
}

var quoteNormalizer = strings.NewReplacer(
	"’", "'",
	"‘", "'",
)

func normalizeQuotes(text string) string {
	return quoteNormalizer.Replace(text)
}

func cleanName(raw string) string {
	words := strings.Fields(strings.TrimSpace(raw))
	nameWords := make([]string, 0, 2)
	for _, word := range words {
		word = strings.Trim(word, ".,!?\"'-")
		if word == "" || !looksLikeNameWord(word) {
			break
		}
		nameWords = append(nameWords, capitalizeNameWord(word))
		if len(nameWords) == 2 {
			break
		}
	}
	return strings.Join(nameWords, " ")
}

func looksLikeNameWord(word string) bool {
	count := utf8.RuneCountInString(word)
	if count < 2 || count > 30 {
		return false
	}
	firstRune, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsLetter(firstRune) {
		return false
	}
	return !isCommonWord(word)
}

func capitalizeNameWord(word string) string {
	firstRune, size := utf8.DecodeRuneInString(word)
	if firstRune == utf8.RuneError || size == 0 {
		return word
	}
	return strings.ToUpper(string(firstRune)) + strings.ToLower(word[size:])
}

// isCommonWord filters everyday words that follow "I'm ..." without being a
// name ("I'm interested", "I'm looking", ...).
func isCommonWord(word string) bool {
	common := map[string]bool{
		"the": true, "and": true, "not": true, "you": true, "all": true,
		"interested": true, "looking": true, "trying": true, "hoping": true,
		"wondering": true, "reaching": true, "writing": true, "asking": true,
		"checking": true, "getting": true, "going": true, "just": true,
		"here": true, "new": true, "ready": true, "good": true, "great": true,
		"fine": true, "sure": true, "sorry": true, "busy": true, "open": true,
		"free": true, "curious": true, "thinking": true, "calling": true,
		"texting": true, "running": true, "starting": true, "building": true,
		"working": true, "owner": true, "owning": true, "with": true,
		"from": true, "about": true, "really": true, "very": true,
		"still": true, "also": true, "only": true, "always": true,
	}
	return common[strings.ToLower(word)]
}
