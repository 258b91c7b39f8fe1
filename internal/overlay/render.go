// internal/overlay/render.go
package overlay

import (
	"bytes"
	"html/template"
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/xkilldash9x/codebuddy-cli/internal/backend"
)

// Raw HTML in backend text is dropped by the default goldmark renderer.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("dracula"),
		),
	),
)

var templates = template.Must(template.New("overlay").Parse(overlayTemplates))

type learnView struct {
	LearnState
	Loading string
}

type variantView struct {
	Kind            backend.VariantKind
	Title           string
	Tabs            []tabView
	Code            template.HTML
	Explanation     template.HTML
	TimeComplexity  string
	SpaceComplexity string
}

type tabView struct {
	Variant backend.VariantKind
	Lang    backend.Language
	Label   string
	Active  bool
}

type optimalView struct {
	Phase      OptimalPhase
	Message    string
	Loading    string
	Variants   []variantView
	Comparison template.HTML
}

// RenderLearn projects a learn state to the overlay's inner HTML.
func RenderLearn(s LearnState) string {
	return execute("learn", learnView{LearnState: s, Loading: MsgLoadingVideo})
}

// RenderOptimal projects a solution state to the overlay's inner HTML.
func RenderOptimal(s OptimalState) string {
	view := optimalView{Phase: s.Phase, Message: s.Message, Loading: MsgLoadingSol}
	if s.Phase == OptimalSolutionShown {
		for _, kind := range backend.Variants {
			view.Variants = append(view.Variants, renderVariant(kind, s.Bundle.Variant(kind), s.Selected(kind)))
		}
		view.Comparison = markdownHTML(s.Bundle.Comparison)
	}
	return execute("optimal", view)
}

func renderVariant(kind backend.VariantKind, v backend.Variant, selected backend.Language) variantView {
	tabs := make([]tabView, 0, len(backend.Languages))
	for _, lang := range backend.Languages {
		tabs = append(tabs, tabView{Variant: kind, Lang: lang, Label: lang.Label(), Active: lang == selected})
	}
	code, ok := v.CodeFor(selected)
	return variantView{
		Kind:            kind,
		Title:           kind.Title(),
		Tabs:            tabs,
		Code:            codeHTML(selected, code, ok),
		Explanation:     markdownHTML(v.Explanation),
		TimeComplexity:  v.TimeComplexity,
		SpaceComplexity: v.SpaceComplexity,
	}
}

func execute(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return `<div class="cb-error">` + template.HTMLEscapeString(err.Error()) + `</div>`
	}
	return buf.String()
}

func markdownHTML(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// codeHTML renders a highlighted block; an absent language renders an
// empty block.
func codeHTML(lang backend.Language, code string, ok bool) template.HTML {
	if !ok || code == "" {
		return `<pre class="cb-code cb-code--empty"></pre>`
	}
	fence := strings.Repeat("`", longestRun(code, '`')+1)
	if len(fence) < 3 {
		fence = "```"
	}
	src := fence + string(lang) + "\n" + code + "\n" + fence + "\n"
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(`<pre class="cb-code">` + template.HTMLEscapeString(code) + `</pre>`)
	}
	return template.HTML(`<div class="cb-code">` + buf.String() + `</div>`)
}

func longestRun(s string, r rune) int {
	longest, current := 0, 0
	for _, c := range s {
		if c == r {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}

const overlayTemplates = `
{{define "close"}}<button class="cb-close" data-cb-action="close" title="Close">&#x2715;</button>{{end}}

{{define "learn"}}<div class="cb-overlay cb-overlay--learn" data-cb-phase="{{.Phase}}" style="position:fixed;inset:0;z-index:999999;display:flex;flex-direction:column;align-items:center;justify-content:center;background:rgba(0,0,0,0.95);color:#fff">
{{template "close"}}
{{- if eq .Phase "loading"}}<div class="cb-loading">{{.Loading}}</div>
{{- else if eq .Phase "video"}}<iframe class="cb-video" width="90%" height="80%" src="{{.EmbedURL}}" title="YouTube video player" frameborder="0" allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture" allowfullscreen></iframe>
{{- else}}<div class="cb-error" style="color:#ff6666">{{.Message}}</div>
{{- end}}
</div>{{end}}

{{define "optimal"}}<div class="cb-overlay cb-overlay--optimal" data-cb-phase="{{.Phase}}" style="position:fixed;inset:0;z-index:999999;display:flex;align-items:center;justify-content:center;overflow-y:auto;background:rgba(20,20,40,0.85)">
<div class="cb-card" style="background:#18181b;color:#e0e7ef;border-radius:18px;padding:36px 32px;max-width:700px;width:90vw;max-height:90vh;overflow-y:auto;position:relative">
{{template "close"}}
<h2 class="cb-title">Optimal &amp; Brute-force Solution</h2>
{{- if eq .Phase "loading"}}<div class="cb-loading">{{.Loading}}</div>
{{- else if eq .Phase "fetch_error"}}<div class="cb-error" style="color:#ff6666">{{.Message}}</div>
{{- else}}
{{- range .Variants}}
<section class="cb-variant" data-cb-section="{{.Kind}}">
<h3>{{.Title}}</h3>
<div class="cb-tabs">{{range .Tabs}}<button class="cb-tab{{if .Active}} cb-tab--active{{end}}" data-cb-action="select" data-cb-variant="{{.Variant}}" data-cb-lang="{{.Lang}}">{{.Label}}</button>{{end}}</div>
{{.Code}}
<div class="cb-explanation"><b>Explanation:</b> {{.Explanation}}</div>
<div class="cb-time"><b>Time Complexity:</b> <span>{{.TimeComplexity}}</span></div>
<div class="cb-space"><b>Space Complexity:</b> <span>{{.SpaceComplexity}}</span></div>
</section>
{{- end}}
<section class="cb-comparison" data-cb-section="comparison">
<h3>Comparison</h3>
{{.Comparison}}
</section>
{{- end}}
</div>
</div>{{end}}
`
