// internal/backend/types.go
package backend

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

// Language is a solution language offered by the backend.
type Language string

const (
	LangCPP        Language = "cpp"
	LangJava       Language = "java"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
)

// Languages in tab order.
var Languages = []Language{LangCPP, LangJava, LangPython, LangJavaScript}

// Label is the tab caption for the language.
func (l Language) Label() string {
	switch l {
	case LangCPP:
		return "C++"
	case LangJava:
		return "Java"
	case LangPython:
		return "Python"
	case LangJavaScript:
		return "Javascript"
	}
	return string(l)
}

// ParseLanguage accepts one of the known language keys.
func ParseLanguage(s string) (Language, bool) {
	for _, l := range Languages {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// VariantKind names one of the two solution variants.
type VariantKind string

const (
	VariantOptimal    VariantKind = "optimal"
	VariantBruteForce VariantKind = "bruteForce"
)

// Variants in display order.
var Variants = []VariantKind{VariantOptimal, VariantBruteForce}

// Title is the section heading for the variant.
func (v VariantKind) Title() string {
	if v == VariantBruteForce {
		return "Brute-force Solution"
	}
	return "Optimal Solution"
}

// ParseVariant accepts "optimal" or "bruteForce".
func ParseVariant(s string) (VariantKind, bool) {
	switch VariantKind(s) {
	case VariantOptimal, VariantBruteForce:
		return VariantKind(s), true
	}
	return "", false
}

// Variant is one solution approach. Code is keyed by language; languages the
// backend did not fill in are simply missing.
type Variant struct {
	Code            map[Language]string
	Explanation     string
	TimeComplexity  string
	SpaceComplexity string
}

// CodeFor returns the code for lang and whether the backend provided it.
func (v Variant) CodeFor(lang Language) (string, bool) {
	code, ok := v.Code[lang]
	return code, ok
}

// SolutionBundle is the decoded /optimal_code response.
type SolutionBundle struct {
	Variants   map[VariantKind]Variant
	Comparison string
}

// Variant returns the named variant, empty when the backend omitted it.
func (b SolutionBundle) Variant(kind VariantKind) Variant {
	return b.Variants[kind]
}

// variantPrefix maps a variant to the flat field prefix used on the wire.
var variantPrefix = map[VariantKind]string{
	VariantOptimal:    "optimal",
	VariantBruteForce: "brute",
}

// decodeSolution unpacks the flat optimal_code_<lang>/brute_* fields.
func decodeSolution(raw map[string]interface{}) SolutionBundle {
	bundle := SolutionBundle{
		Variants:   make(map[VariantKind]Variant, len(Variants)),
		Comparison: stringField(raw, "comparison"),
	}
	for _, kind := range Variants {
		prefix := variantPrefix[kind]
		v := Variant{
			Code:            make(map[Language]string),
			Explanation:     stringField(raw, prefix+"_explanation"),
			TimeComplexity:  stringField(raw, prefix+"_time_complexity"),
			SpaceComplexity: stringField(raw, prefix+"_space_complexity"),
		}
		for _, lang := range Languages {
			if val, ok := raw[prefix+"_code_"+string(lang)]; ok && val != nil {
				v.Code[lang] = toString(val)
			}
		}
		bundle.Variants[kind] = v
	}
	return bundle
}

func stringField(raw map[string]interface{}, key string) string {
	val, ok := raw[key]
	if !ok || val == nil {
		return ""
	}
	return toString(val)
}

func toString(val interface{}) string {
	switch t := val.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Company is one entry of the /companies_asked response.
type Company struct {
	Name string `json:"name"`
	Year Year   `json:"year"`
}

// Year is tolerant of the backend sending either a number or a string.
type Year string

func (y *Year) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*y = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*y = Year(str)
		return nil
	}
	*y = Year(s)
	return nil
}

// Analysis is the decoded /analyze response.
type Analysis struct {
	Text string `json:"analysis"`
}

// ReportedError is a success-shaped response that carried an "error" field.
type ReportedError struct {
	Endpoint string
	Message  string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("backend reported an error from %s: %s", e.Endpoint, e.Message)
}
