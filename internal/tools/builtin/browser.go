package builtin

import (
	"sort"
	"strings"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

// Browser is a mock web browser over a fixed set of pages, enough for
// policy-lookup scenarios without any network access.
type Browser struct {
	base
	pages      map[string]string
	currentURL string
	history    []string
}

// NewBrowser builds a browser whose pages come from config, falling
// back to a small example.com site.
func NewBrowser(ref *ast.ToolRef) *Browser {
	t := &Browser{base: newBase(ref, "Mock browser with canned pages")}

	if raw, ok := t.cfgMap("pages"); ok {
		t.pages = make(map[string]string, len(raw))
		for url, content := range raw {
			if text, ok := content.(string); ok {
				t.pages[url] = text
			}
		}
	} else {
		t.pages = map[string]string{
			"https://example.com": "<html><body><h1>Example Domain</h1></body></html>",
			"https://example.com/policy": "Refund Policy: Refunds are allowed within 30 days of purchase. " +
				"Items must be in original condition. Digital products are non-refundable.",
			"https://example.com/faq": "FAQ:\n" +
				"Q: How do I track my order?\n" +
				"A: Use the tracking number sent to your email.\n\n" +
				"Q: What is your return policy?\n" +
				"A: Items can be returned within 30 days.",
			"https://example.com/contact": "Contact Us:\n" +
				"Email: support@example.com\n" +
				"Phone: 1-800-EXAMPLE\n" +
				"Hours: Mon-Fri 9AM-5PM EST",
		}
	}

	return t
}

func (t *Browser) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) tools.Result {
	switch action {
	case "open", "navigate":
		return t.open(args)
	case "get_content":
		return t.getContent()
	case "search":
		return t.search(args)
	case "back":
		return t.back()
	case "get_current_url":
		return t.getCurrentURL()
	default:
		return tools.Errorf("Unknown action: %s", action)
	}
}

func (t *Browser) open(args map[string]interface{}) tools.Result {
	url := stringArg(args, "url")
	if url == "" {
		return tools.Errorf("url is required")
	}

	content, ok := t.pages[url]
	if !ok {
		return tools.Result{
			Success: false,
			Error:   "Page not found: " + url,
			Data:    map[string]interface{}{"status_code": 404},
		}
	}

	if t.currentURL != "" {
		t.history = append(t.history, t.currentURL)
	}
	t.currentURL = url

	return tools.OK(map[string]interface{}{
		"url":         url,
		"content":     content,
		"status_code": 200,
	})
}

func (t *Browser) getContent() tools.Result {
	if t.currentURL == "" {
		return tools.Errorf("No page is currently open")
	}

	return tools.OK(map[string]interface{}{
		"url":     t.currentURL,
		"content": t.pages[t.currentURL],
	})
}

func (t *Browser) search(args map[string]interface{}) tools.Result {
	query := strings.ToLower(stringArg(args, "query"))
	if query == "" {
		return tools.Errorf("query is required")
	}

	urls := make([]string, 0, len(t.pages))
	for url := range t.pages {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	results := make([]interface{}, 0)
	for _, url := range urls {
		content := t.pages[url]
		idx := strings.Index(strings.ToLower(content), query)
		if idx < 0 {
			continue
		}
		results = append(results, map[string]interface{}{
			"url":     url,
			"snippet": snippet(content, idx, len(query)),
		})
	}

	return tools.OK(map[string]interface{}{"query": query, "results": results, "count": len(results)})
}

// snippet extracts up to 50 bytes of context either side of a match,
// with ellipses marking truncation.
func snippet(content string, idx, matchLen int) string {
	start := idx - 50
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + 50
	if end > len(content) {
		end = len(content)
	}

	out := content[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}

func (t *Browser) back() tools.Result {
	if len(t.history) == 0 {
		return tools.Errorf("No history to go back to")
	}

	previous := t.history[len(t.history)-1]
	t.history = t.history[:len(t.history)-1]
	t.currentURL = previous

	return tools.OK(map[string]interface{}{
		"url":     previous,
		"content": t.pages[previous],
	})
}

func (t *Browser) getCurrentURL() tools.Result {
	var url interface{}
	if t.currentURL != "" {
		url = t.currentURL
	}
	return tools.OK(map[string]interface{}{"url": url})
}

func (t *Browser) Actions() []tools.ActionSpec {
	return []tools.ActionSpec{
		{
			Name:        "open",
			Description: "Open a URL and return its content",
			Parameters: objectSchema(map[string]schema.JSON{
				"url": stringProp("The URL to open"),
			}, "url"),
		},
		{
			Name:        "get_content",
			Description: "Get the content of the current page",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "search",
			Description: "Search for text within available pages",
			Parameters: objectSchema(map[string]schema.JSON{
				"query": stringProp("Text to search for"),
			}, "query"),
		},
		{
			Name:        "back",
			Description: "Go back to the previous page",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "get_current_url",
			Description: "Get the currently open URL",
			Parameters:  objectSchema(nil),
		},
	}
}
