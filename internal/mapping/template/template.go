// Package template implements the small Inja-style template language the
// mapping engine's value/json kinds render against: variable substitution
// (`{{ path.to.field }}`), conditionals (`{% if … %}…{% else if … %}…{%
// endif %}`), and integer arithmetic on numeric fields. No pack example
// ships a matching DSL, so this is hand-rolled rather than a third-party
// engine.
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// node is one piece of a parsed template.
type node interface{}

type textNode string

type exprNode struct {
	expr string
}

type ifNode struct {
	branches []branch // evaluated in order; first true condition wins
	elseBody []node
}

type branch struct {
	cond string
	body []node
}

// Template is a parsed template, ready to render against any number of
// contexts.
type Template struct {
	nodes []node
}

// Parse compiles src into a Template.
func Parse(src string) (*Template, error) {
	nodes, rest, err := parseNodes(src, false)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("template: unexpected trailing %q", rest)
	}
	return &Template{nodes: nodes}, nil
}

// Render renders t against ctx, a field lookup table (typically {"value":
// payload} or a parsed JSON object).
func Render(src string, ctx map[string]any) (string, error) {
	t, err := Parse(src)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

func (t *Template) Render(ctx map[string]any) (string, error) {
	var b strings.Builder
	if err := renderNodes(t.nodes, ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// parseNodes scans src for literal text, {{ expr }}, and {% ... %} tags.
// When stopAtControl is true, parsing stops at the first {% else if %},
// {% else %}, or {% endif %} tag and returns the unconsumed remainder
// (including that tag) in rest.
func parseNodes(src string, stopAtControl bool) (nodes []node, rest string, err error) {
	for {
		ttIdx := strings.Index(src, "{{")
		tcIdx := strings.Index(src, "{%")

		if ttIdx == -1 && tcIdx == -1 {
			if src != "" {
				nodes = append(nodes, textNode(src))
			}
			return nodes, "", nil
		}

		next := ttIdx
		isExpr := true
		if tcIdx != -1 && (ttIdx == -1 || tcIdx < ttIdx) {
			next = tcIdx
			isExpr = false
		}

		if next > 0 {
			nodes = append(nodes, textNode(src[:next]))
		}
		src = src[next:]

		if isExpr {
			end := strings.Index(src, "}}")
			if end == -1 {
				return nil, "", fmt.Errorf("template: unterminated {{ }}")
			}
			expr := strings.TrimSpace(src[2:end])
			nodes = append(nodes, exprNode{expr: expr})
			src = src[end+2:]
			continue
		}

		end := strings.Index(src, "%}")
		if end == -1 {
			return nil, "", fmt.Errorf("template: unterminated {%% %%}")
		}
		tag := strings.TrimSpace(src[2:end])
		rem := src[end+2:]

		switch {
		case tag == "endif":
			if stopAtControl {
				return nodes, src, nil
			}
			return nil, "", fmt.Errorf("template: {%% endif %%} without matching if")
		case strings.HasPrefix(tag, "else if "):
			if stopAtControl {
				return nodes, src, nil
			}
			return nil, "", fmt.Errorf("template: {%% else if %%} without matching if")
		case tag == "else":
			if stopAtControl {
				return nodes, src, nil
			}
			return nil, "", fmt.Errorf("template: {%% else %%} without matching if")
		case strings.HasPrefix(tag, "if "):
			n, after, err := parseIf(tag, rem)
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, n)
			src = after
			continue
		default:
			return nil, "", fmt.Errorf("template: unknown tag %q", tag)
		}
	}
}

// parseIf parses the body following an `if <cond>` tag, including any
// `else if`/`else` branches, through its `endif`.
func parseIf(openTag, rest string) (ifNode, string, error) {
	cond := strings.TrimSpace(strings.TrimPrefix(openTag, "if "))
	var n ifNode

	body, rest, err := parseNodes(rest, true)
	if err != nil {
		return n, "", err
	}
	n.branches = append(n.branches, branch{cond: cond, body: body})

	for {
		end := strings.Index(rest, "%}")
		if end == -1 || !strings.HasPrefix(rest, "{%") {
			return n, "", fmt.Errorf("template: malformed control tag near %q", rest)
		}
		tag := strings.TrimSpace(rest[2:end])
		rest = rest[end+2:]

		switch {
		case tag == "endif":
			return n, rest, nil
		case strings.HasPrefix(tag, "else if "):
			c := strings.TrimSpace(strings.TrimPrefix(tag, "else if "))
			b, after, err := parseNodes(rest, true)
			if err != nil {
				return n, "", err
			}
			n.branches = append(n.branches, branch{cond: c, body: b})
			rest = after
		case tag == "else":
			b, after, err := parseNodes(rest, true)
			if err != nil {
				return n, "", err
			}
			n.elseBody = b
			rest = after
		default:
			return n, "", fmt.Errorf("template: expected else/endif, got %q", tag)
		}
	}
}

func renderNodes(nodes []node, ctx map[string]any, b *strings.Builder) error {
	for _, n := range nodes {
		switch v := n.(type) {
		case textNode:
			b.WriteString(string(v))
		case exprNode:
			val, err := eval(v.expr, ctx)
			if err != nil {
				return err
			}
			b.WriteString(stringify(val))
		case ifNode:
			matched := false
			for _, br := range v.branches {
				cond, err := eval(br.cond, ctx)
				if err != nil {
					return err
				}
				if truthy(cond) {
					if err := renderNodes(br.body, ctx, b); err != nil {
						return err
					}
					matched = true
					break
				}
			}
			if !matched {
				if err := renderNodes(v.elseBody, ctx, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}
