// Package classify tags records with a medical subject category using weighted
// keyword matching over title, abstract, keywords and journal.
package classify

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// OtherCategory is assigned when no rule matches.
const OtherCategory = "other"

// leadWindow approximates the title region of the combined text.
const leadWindow = 200

// Rule maps a category to its trigger keywords and weight.
type Rule struct {
	Category string
	Keywords []string
	Weight   int
}

// DefaultRules returns the built-in category rules. Declaration order breaks ties.
func DefaultRules() []Rule {
	return []Rule{
		{"cardiovascular", []string{"heart", "cardiac", "cardiovascular", "coronary", "artery", "hypertension", "血压", "心脏", "心血管", "冠心病", "心律", "心肌", "动脉", "静脉"}, 10},
		{"oncology", []string{"cancer", "tumor", "oncology", "carcinoma", "malignant", "chemotherapy", "radiation", "肿瘤", "癌症", "恶性", "化疗", "放疗", "免疫治疗"}, 10},
		{"neuroscience", []string{"brain", "neural", "neurology", "neurological", "alzheimer", "parkinson", "stroke", "大脑", "神经", "阿尔茨海默", "帕金森", "中风", "脑卒中"}, 9},
		{"ai_medicine", []string{"artificial intelligence", "machine learning", "deep learning", "ai", "ml", "neural network", "computer vision", "natural language processing", "人工智能", "机器学习", "深度学习", "神经网络", "计算机视觉", "自然语言处理"}, 8},
		{"endocrinology", []string{"diabetes", "insulin", "hormone", "endocrine", "thyroid", "glucose", "糖尿病", "胰岛素", "激素", "内分泌", "甲状腺", "血糖"}, 8},
		{"immunology", []string{"immune", "immunology", "antibody", "vaccine", "autoimmune", "allergy", "免疫", "抗体", "疫苗", "自身免疫", "过敏", "免疫系统"}, 7},
		{"infectious_disease", []string{"infection", "virus", "bacteria", "pathogen", "antimicrobial", "antibiotic", "感染", "病毒", "细菌", "病原体", "抗菌", "抗生素", "传染病"}, 7},
		{"digestive", []string{"gastro", "liver", "stomach", "intestine", "digestive", "hepatitis", "胃", "肝", "肠", "消化", "肝炎", "胃炎", "肠炎"}, 6},
		{"respiratory", []string{"lung", "respiratory", "pneumonia", "asthma", "copd", "bronchial", "肺", "呼吸", "肺炎", "哮喘", "支气管", "呼吸道"}, 6},
		{"psychiatry", []string{"mental", "psychiatric", "depression", "anxiety", "schizophrenia", "bipolar", "精神", "抑郁", "焦虑", "精神分裂", "双相", "心理健康"}, 6},
		{"medical_devices", []string{"medical device", "imaging", "mri", "ct", "ultrasound", "x-ray", "医疗设备", "影像", "核磁共振", "超声", "x射线", "医疗器械"}, 5},
		{"pharmacology", []string{"drug", "pharmaceutical", "pharmacology", "medication", "therapy", "treatment", "药物", "制药", "药理", "药品", "治疗", "疗法"}, 5},
	}
}

// KeywordClassifier scores every rule and picks the best category.
type KeywordClassifier struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewKeywordClassifier builds a classifier. Nil rules use DefaultRules.
func NewKeywordClassifier(rules []Rule) *KeywordClassifier {
	if rules == nil {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		normalized = append(normalized, lowerRule(r))
	}
	return &KeywordClassifier{rules: normalized}
}

// AddRule registers or replaces a category rule.
func (c *KeywordClassifier) AddRule(rule Rule) {
	rule = lowerRule(rule)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rules {
		if c.rules[i].Category == rule.Category {
			c.rules[i] = rule
			return
		}
	}
	c.rules = append(c.rules, rule)
}

// Categories lists the known categories in rule order.
func (c *KeywordClassifier) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Category)
	}
	return out
}

// Classify implements crawler.Classifier. It never fails.
func (c *KeywordClassifier) Classify(record crawler.Record) (string, error) {
	content := strings.ToLower(strings.Join([]string{
		record.Title, record.AbstractText, record.Keywords, record.Journal,
	}, " "))

	c.mu.RLock()
	defer c.mu.RUnlock()
	best, bestScore := OtherCategory, 0.0
	for _, rule := range c.rules {
		score := ruleScore(content, rule.Keywords)
		if score <= 0 {
			continue
		}
		weight := rule.Weight
		if weight <= 0 {
			weight = 1
		}
		score *= float64(weight)
		if score > bestScore {
			best, bestScore = rule.Category, score
		}
	}
	return best, nil
}

func ruleScore(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	score := 0.0
	matched := 0
	for _, kw := range keywords {
		idx := strings.Index(content, kw)
		if idx < 0 {
			continue
		}
		matched++
		if utf8.RuneCountInString(content[:idx]) < leadWindow {
			score += 2
		} else {
			score++
		}
		if hasWholeWord(content, kw) {
			score += 0.5
		}
	}
	matchRate := float64(matched) / float64(len(keywords))
	return score * (1 + matchRate)
}

// hasWholeWord reports whether kw occurs in content bounded by non-word runes.
func hasWholeWord(content, kw string) bool {
	for start := 0; start < len(content); {
		idx := strings.Index(content[start:], kw)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(kw)
		before, _ := utf8.DecodeLastRuneInString(content[:idx])
		after, _ := utf8.DecodeRuneInString(content[end:])
		if (idx == 0 || !isASCIIWord(before)) && (end == len(content) || !isASCIIWord(after)) {
			return true
		}
		start = idx + 1
	}
	return false
}

func isASCIIWord(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

func lowerRule(r Rule) Rule {
	kws := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	r.Keywords = kws
	return r
}
