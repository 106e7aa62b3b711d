package domain

// Mode selects the persona and response policy for one chat turn.
type Mode string

// Dialogue modes.
const (
	// ModeKnowledge answers strictly from the book's content.
	ModeKnowledge Mode = "knowledge"

	// ModeAuthor answers in the voice of the book's author.
	ModeAuthor Mode = "author"

	// ModeCoach answers as a coach applying the book's ideas to the
	// reader's situation.
	ModeCoach Mode = "coach"

	// ModeCitation answers with explicit page/chapter markers inline.
	ModeCitation Mode = "citation"
)

// ModeSpec is the structured response policy for a mode. One prompt
// assembly function consumes these records; modes differ only in data,
// not in formatting code.
type ModeSpec struct {
	// Persona is the framing text injected into the system prompt.
	// It may reference the book via %s verbs for title and author.
	Persona string

	// RequireCitations makes inline page/chapter markers mandatory
	// and attaches a citation list to the exchange.
	RequireCitations bool

	// EncourageCitations asks for location markers where natural
	// without making them mandatory.
	EncourageCitations bool

	// ExpandConcepts instructs the model to define domain concepts
	// inline as it introduces them.
	ExpandConcepts bool
}

// modeSpecs maps each mode to its response policy.
var modeSpecs = map[Mode]ModeSpec{
	ModeKnowledge: {
		Persona: "You are a knowledgeable assistant for the book %q by %s. " +
			"Answer strictly from the provided excerpts. If the excerpts do not " +
			"contain the answer, say so plainly instead of guessing.",
		EncourageCitations: true,
	},
	ModeAuthor: {
		Persona: "You are %[2]s, the author of %[1]q. Answer in your own voice, " +
			"drawing only on what you wrote in the provided excerpts. Stay in " +
			"character and keep your answers grounded in the text.",
		EncourageCitations: true,
	},
	ModeCoach: {
		Persona: "You are a personal coach who has internalised the book %q by %s. " +
			"Apply its ideas to the reader's situation using the provided excerpts. " +
			"Give practical, actionable guidance grounded in the text.",
		ExpandConcepts: true,
	},
	ModeCitation: {
		Persona: "You are a precise research assistant for the book %q by %s. " +
			"Answer from the provided excerpts and mark the source location " +
			"(page or chapter) inline for every claim you make.",
		RequireCitations: true,
		ExpandConcepts:   true,
	},
}

// Spec returns the response policy for the mode and whether the mode
// is known.
func (m Mode) Spec() (ModeSpec, bool) {
	spec, ok := modeSpecs[m]
	return spec, ok
}

// Valid reports whether the mode is one of the defined dialogue modes.
func (m Mode) Valid() bool {
	_, ok := modeSpecs[m]
	return ok
}

// Modes lists all defined dialogue modes.
func Modes() []Mode {
	return []Mode{ModeKnowledge, ModeAuthor, ModeCoach, ModeCitation}
}
