// Package render turns a rule's message source into channel-ready content.
// Literal text on the rule wins over a template reference, which wins over
// the built-in default for the rule type.
package render

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"

	"github.com/osteele/liquid"

	"github.com/fitpulse/studio-automation/internal/channel"
	"github.com/fitpulse/studio-automation/internal/rules"
)

// TemplateSource loads a named message template. Returns (nil, nil) when
// the template does not exist.
type TemplateSource interface {
	Template(ctx context.Context, name string) (*Template, error)
}

// Template is a stored message template. Bodies use Liquid syntax.
type Template struct {
	Name     string
	Subject  string
	TextBody string
	HTMLBody string
	SMSBody  string
}

// Renderer renders rule content for one recipient at a time.
type Renderer struct {
	templates TemplateSource
	engine    *liquid.Engine
	cache     sync.Map // template body -> *liquid.Template
}

// New creates a renderer. templates may be nil when no template store is
// wired; rules then fall back to literal text or built-in defaults.
func New(templates TemplateSource) *Renderer {
	engine := liquid.NewEngine()

	// Fallback filter: {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Renderer{templates: templates, engine: engine}
}

// Render produces the content for one recipient. Rendering never fails on
// missing variables: literal placeholders stay verbatim and Liquid runs in
// lax mode, so the only errors are template-store read failures.
func (r *Renderer) Render(ctx context.Context, rule *rules.Rule, vars map[string]interface{}) (channel.Content, error) {
	content := defaultContent(rule.RuleType)

	if rule.TemplateName != "" && r.templates != nil {
		tpl, err := r.templates.Template(ctx, rule.TemplateName)
		if err != nil {
			return channel.Content{}, fmt.Errorf("render: load template %q: %w", rule.TemplateName, err)
		}
		if tpl != nil {
			if tpl.Subject != "" {
				content.Subject = r.renderLiquid(tpl.Subject, vars)
			}
			if tpl.TextBody != "" {
				content.Text = r.renderLiquid(tpl.TextBody, vars)
			}
			if tpl.HTMLBody != "" {
				content.HTML = r.renderLiquid(tpl.HTMLBody, vars)
			}
			if tpl.SMSBody != "" {
				content.SMS = r.renderLiquid(tpl.SMSBody, vars)
			}
		} else {
			log.Printf("[Renderer] Template %q not found, using defaults for rule %s", rule.TemplateName, rule.ID)
		}
	}

	// Literal text on the rule overrides any template content.
	if rule.EmailSubject != "" {
		content.Subject = substitutePlaceholders(rule.EmailSubject, vars)
	}
	if rule.EmailBody != "" {
		content.Text = substitutePlaceholders(rule.EmailBody, vars)
		content.HTML = ""
	}
	if rule.SMSBody != "" {
		content.SMS = substitutePlaceholders(rule.SMSBody, vars)
	}

	// Default content carries placeholders too.
	content.Subject = substitutePlaceholders(content.Subject, vars)
	content.Text = substitutePlaceholders(content.Text, vars)
	content.SMS = substitutePlaceholders(content.SMS, vars)

	return content, nil
}

// renderLiquid renders a Liquid body, returning the raw body on parse or
// render errors so a broken template degrades instead of blocking sends.
func (r *Renderer) renderLiquid(body string, vars map[string]interface{}) string {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(body); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(body)
		if err != nil {
			log.Printf("[Renderer] Liquid parse error: %v", err)
			return body
		}
		r.cache.Store(body, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		log.Printf("[Renderer] Liquid render error: %v", err)
		return body
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// substitutePlaceholders replaces {name}-style placeholders from vars.
// Unresolved placeholders are left verbatim.
func substitutePlaceholders(s string, vars map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := match[1 : len(match)-1]
		if val, ok := vars[key]; ok {
			return fmt.Sprintf("%v", val)
		}
		return match
	})
}
