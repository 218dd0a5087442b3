package keywords

// builtinStopwords is the base English stopword list. Callers extend it
// via the extra-stopwords configuration.
var builtinStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "been": true, "by": true, "for": true, "from": true, "has": true,
	"he": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "must": true, "shall": true,
	"this": true, "these": true, "they": true, "them": true, "their": true,
	"there": true, "then": true, "than": true, "or": true, "but": true,
	"not": true, "no": true, "nor": true, "so": true, "yet": true,
	"however": true, "therefore": true, "thus": true, "hence": true,
	"because": true, "since": true, "although": true, "though": true,
	"unless": true, "until": true, "while": true, "where": true, "when": true,
	"who": true, "whom": true, "whose": true, "which": true, "what": true,
	"why": true, "how": true, "if": true, "do": true, "does": true, "did": true,
	"have": true, "had": true, "having": true, "get": true, "got": true,
	"go": true, "going": true, "make": true, "made": true, "see": true,
	"know": true, "say": true, "said": true, "think": true, "thing": true,
	"things": true, "way": true, "lot": true, "bit": true, "someone": true,
	"something": true, "anything": true, "everything": true, "people": true,
	"time": true, "his": true, "her": true, "she": true, "we": true,
	"you": true, "your": true, "our": true, "us": true, "me": true, "my": true,
	"i": true, "im": true, "ive": true, "dont": true, "doesnt": true,
	"cant": true, "wont": true, "also": true, "just": true, "really": true,
	"very": true, "much": true, "more": true, "most": true, "some": true,
	"any": true, "all": true, "one": true, "two": true, "other": true,
	"such": true, "same": true, "own": true, "only": true, "even": true,
	"still": true, "here": true, "now": true, "out": true, "about": true,
	"into": true, "over": true, "after": true, "before": true, "up": true,
	"down": true, "off": true, "again": true, "new": true, "use": true,
	"using": true, "used": true, "need": true, "want": true, "like": true,
	"work": true, "works": true, "working": true, "help": true, "issue": true,
	"problem": true, "question": true, "example": true, "thanks": true,
	"please": true, "hi": true, "hello": true, "edit": true, "update": true,
}
