package driven

// TokenCounter estimates token counts for budgeting when a provider
// does not report exact usage. Estimates are approximate; the
// word-count fallback in particular undercounts code and non-Latin
// scripts.
type TokenCounter interface {
	// Count returns the estimated token count for the text.
	Count(text string) int
}
