package agents

// Technique is one remediation from the refactoring catalog.
type Technique struct {
	Name   string
	Advice string
}

// remediationCatalog maps smell rule names to ordered remediation techniques.
// The first entry is the primary suggestion; order is part of the contract
// because advice selection must be deterministic.
var remediationCatalog = map[string][]Technique{
	"long_function": {
		{
			Name:   "Extract Method",
			Advice: "Split the function into smaller, focused functions named after the logical blocks they extract.",
		},
		{
			Name:   "Decompose Conditional",
			Advice: "Move complex conditional logic into separate, well-named predicate functions.",
		},
	},
	"large_class": {
		{
			Name:   "Extract Class",
			Advice: "Move groups of related methods and fields into a new class with a single clear responsibility.",
		},
		{
			Name:   "Extract Interface",
			Advice: "Group related public methods behind a narrow interface and depend on that instead.",
		},
	},
	"god_file": {
		{
			Name:   "Move Method",
			Advice: "Relocate functions to the files whose data they actually operate on.",
		},
	},
	"long_file": {
		{
			Name:   "Split Module",
			Advice: "Split the file along its responsibility boundaries into separate modules.",
		},
	},
	"duplicate_symbols": {
		{
			Name:   "Pull Up Method",
			Advice: "Consolidate the duplicated implementations into one shared definition and reuse it.",
		},
		{
			Name:   "Form Template Method",
			Advice: "Keep the shared algorithm skeleton in one place and vary only the differing steps.",
		},
	},
}

// fallbackTechnique is used for smells without a catalog entry.
var fallbackTechnique = Technique{
	Name:   "Review and Refactor",
	Advice: "Review the flagged code and reduce its size or complexity before it spreads.",
}

// remediationFor returns the primary technique for a smell rule.
func remediationFor(rule string) Technique {
	if techniques, ok := remediationCatalog[rule]; ok && len(techniques) > 0 {
		return techniques[0]
	}
	return fallbackTechnique
}
