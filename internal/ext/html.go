package ext

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

// MaxHTMLSize bounds documents handed to host.html
const MaxHTMLSize = 5 << 20

// Element is one match of a CSS selector or XPath expression
type Element struct {
	Text  string            `json:"text"`
	HTML  string            `json:"html"`
	Attrs map[string]string `json:"attrs"`
}

// HTML exposes host.html for parsing documents a guest already holds,
// typically a fetch body. It touches nothing outside the VM, so it needs no
// permission.
type HTML struct {
	sanitizer *bluemonday.Policy
}

func NewHTML() *HTML {
	return &HTML{sanitizer: bluemonday.UGCPolicy()}
}

func (h *HTML) Name() string { return "html" }

func (h *HTML) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "html")
	if err != nil {
		return err
	}
	query := func(op string, fn func(doc, expr string) ([]Element, error)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			doc := stringArg(vm, call, 0, "html")
			expr := stringArg(vm, call, 1, "selector")
			elems, err := fn(doc, expr)
			if err != nil {
				rt.Metrics().RecordHostCall(op, status(err))
				panic(vm.NewTypeError("%v", err))
			}
			record(rt, vm, op, nil)
			out := make([]interface{}, len(elems))
			for i, e := range elems {
				out[i] = toObject(vm, e)
			}
			return vm.ToValue(out)
		}
	}

	fns := map[string]func(goja.FunctionCall) goja.Value{
		"select": query("host.html.select", Select),
		"xpath":  query("host.html.xpath", XPath),
		"sanitize": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(h.sanitizer.Sanitize(stringArg(vm, call, 0, "html")))
		},
		"text": func(call goja.FunctionCall) goja.Value {
			text, err := Text(stringArg(vm, call, 0, "html"))
			if err != nil {
				panic(vm.NewTypeError("%v", err))
			}
			return vm.ToValue(text)
		},
	}
	for name, fn := range fns {
		if err := ns.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func checkSize(doc string) error {
	if len(doc) > MaxHTMLSize {
		return fmt.Errorf("document is %d bytes, limit is %d", len(doc), MaxHTMLSize)
	}
	return nil
}

// Select returns the elements matching a CSS selector
func Select(doc, selector string) ([]Element, error) {
	if err := checkSize(doc); err != nil {
		return nil, err
	}
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var out []Element
	d.FindMatcher(matcher).Each(func(_ int, s *goquery.Selection) {
		outer, _ := goquery.OuterHtml(s)
		out = append(out, Element{
			Text:  strings.TrimSpace(s.Text()),
			HTML:  outer,
			Attrs: attrs(s.Get(0)),
		})
	})
	return out, nil
}

// XPath returns the elements matching an XPath expression
func XPath(doc, expr string) ([]Element, error) {
	if err := checkSize(doc); err != nil {
		return nil, err
	}
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}

	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Element{
			Text:  strings.TrimSpace(htmlquery.InnerText(n)),
			HTML:  htmlquery.OutputHTML(n, true),
			Attrs: attrs(n),
		})
	}
	return out, nil
}

// Text returns the document's visible text with whitespace collapsed
func Text(doc string) (string, error) {
	if err := checkSize(doc); err != nil {
		return "", err
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	d.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(d.Text()), " "), nil
}

func attrs(n *html.Node) map[string]string {
	out := map[string]string{}
	if n == nil {
		return out
	}
	for _, a := range n.Attr {
		out[a.Key] = a.Val
	}
	return out
}
