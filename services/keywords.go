package services

import (
	"regexp"
	"strings"
)

// TagKeywords ist die kuratierte Taxonomie: Tag-Name auf die Schlüsselwörter
// und Phrasen, deren Vorkommen im Text das Tag begründet. Nur lesend benutzt.
var TagKeywords = map[string][]string{
	"interpretability": {
		"interpretability", "interpret", "explainability", "explainable",
		"transparency", "black box", "feature visualization", "saliency",
		"attention mechanism", "activation atlas",
	},
	"mechanistic_interpretability": {
		"mechanistic interpretability", "mechanistic", "circuits",
		"neuron analysis", "activation", "mechanistic understanding",
		"reverse engineering neural", "neural circuit",
	},
	"alignment": {
		"alignment", "value alignment", "aligned", "human values",
		"goal alignment", "preference learning", "intent alignment",
	},
	"rlhf": {
		"rlhf", "reinforcement learning from human feedback",
		"reinforcement learning human", "rl from human feedback",
		"reward modeling", "preference modeling",
	},
	"adversarial_robustness": {
		"adversarial", "robustness", "adversarial examples",
		"adversarial attack", "adversarial training", "perturbation",
		"robust optimization", "certified robustness",
	},
	"safety": {
		"ai safety", "safety", "safe ai", "safety critical",
		"fail-safe", "safety mechanism",
	},
	"governance": {
		"governance", "ai governance", "policy", "regulation",
		"oversight", "compliance", "standards",
	},
	"ethics": {
		"ethics", "ethical", "moral", "fairness", "bias",
		"discrimination", "justice", "responsible ai",
	},
	"risk": {
		"risk", "existential risk", "catastrophic", "dangerous",
		"threat", "hazard", "harm",
	},
	"scalable_oversight": {
		"scalable oversight", "oversight", "supervision",
		"recursive reward", "amplification", "debate",
	},
	"reward_hacking": {
		"reward hacking", "reward gaming", "specification gaming",
		"goodhart", "proxy gaming", "side effects",
	},
	"inner_alignment": {
		"inner alignment", "mesa-optimization", "mesa-optimizer",
		"inner optimizer", "objective robustness",
	},
	"outer_alignment": {
		"outer alignment", "objective specification", "reward specification",
		"reward function design",
	},
	"deception": {
		"deception", "deceptive", "hidden objectives", "treacherous turn",
		"misaligned behavior",
	},
	"capability": {
		"capability", "performance", "benchmark", "state-of-the-art",
		"sota", "advancement",
	},
	"llm": {
		"large language model", "llm", "language model", "gpt",
		"transformer", "bert", "chatgpt", "claude",
	},
	"multimodal": {
		"multimodal", "vision-language", "multi-modal", "clip",
		"vision transformer", "image-text",
	},
	"agent": {
		"agent", "autonomous", "reinforcement learning", "rl",
		"policy learning", "decision making",
	},
	"uncertainty": {
		"uncertainty", "confidence", "calibration", "epistemic",
		"aleatoric", "uncertainty quantification",
	},
	"transparency": {
		"transparency", "transparent", "openness", "disclosure",
		"model cards", "documentation",
	},
	"verification": {
		"verification", "formal verification", "proof", "guarantee",
		"certified", "provable",
	},
	"testing": {
		"testing", "evaluation", "benchmark", "test suite",
		"validation", "assessment",
	},
	"dataset": {
		"dataset", "corpus", "benchmark", "data collection",
		"annotation", "labeling",
	},
	"computer_vision": {
		"computer vision", "image", "visual", "object detection",
		"segmentation", "recognition",
	},
	"nlp": {
		"natural language processing", "nlp", "text", "language",
		"semantic", "syntax", "tokenization",
	},
	"theoretical": {
		"theoretical", "theory", "mathematical", "formal",
		"analysis", "proof",
	},
	"empirical": {
		"empirical", "experiment", "experimental", "evaluation",
		"study", "case study",
	},
	"survey": {
		"survey", "review", "overview", "literature review",
		"systematic review",
	},
}

// ArxivCategoryMap bildet arXiv-Kategorien auf Tags ab.
var ArxivCategoryMap = map[string][]string{
	"cs.AI":   {"ai", "machine_learning"},
	"cs.LG":   {"machine_learning"},
	"cs.CL":   {"nlp"},
	"cs.CV":   {"computer_vision"},
	"cs.CY":   {"governance", "ethics"},
	"cs.HC":   {"human_computer_interaction"},
	"stat.ML": {"machine_learning", "theoretical"},
}

// FieldMap bildet Fields-of-Study-Labels (Semantic Scholar, CrossRef-Subjects)
// auf Tags ab.
var FieldMap = map[string][]string{
	"Computer Science":            {"ai"},
	"Machine Learning":            {"machine_learning"},
	"Artificial Intelligence":     {"ai"},
	"Natural Language Processing": {"nlp"},
	"Computer Vision":             {"computer_vision"},
	"Ethics":                      {"ethics"},
	"Philosophy":                  {"ethics", "theoretical"},
}

// TagSlug leitet den URL-Slug aus dem Tag-Namen ab.
func TagSlug(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// keywordIndex hält die vorkompilierten Wortgrenzen-Patterns pro Tag.
// Einmal beim Start gebaut, danach nur lesend.
type keywordIndex struct {
	patterns map[string][]*regexp.Regexp
}

func newKeywordIndex() *keywordIndex {
	idx := &keywordIndex{patterns: make(map[string][]*regexp.Regexp, len(TagKeywords))}
	for tag, keywords := range TagKeywords {
		ps := make([]*regexp.Regexp, 0, len(keywords))
		for _, kw := range keywords {
			ps = append(ps, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(kw))+`\b`))
		}
		idx.patterns[tag] = ps
	}
	return idx
}
