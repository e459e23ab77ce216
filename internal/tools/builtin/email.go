package builtin

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

// Email is a mock mail service with an inbox, sent mail, and drafts.
// The inbox can be seeded through config's initial_inbox.
type Email struct {
	base
	sent   []map[string]interface{}
	inbox  []map[string]interface{}
	drafts []map[string]interface{}
	now    func() time.Time
}

// NewEmail builds a mail service whose inbox comes from config; sent
// mail and drafts start empty.
func NewEmail(ref *ast.ToolRef) *Email {
	t := &Email{
		base: newBase(ref, "Mock email service"),
		now:  time.Now,
	}
	t.inbox = t.cfgMapSlice("initial_inbox")
	return t
}

func (t *Email) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) tools.Result {
	switch action {
	case "send":
		return t.send(args)
	case "list_inbox":
		return t.listInbox(args)
	case "read":
		return t.read(args)
	case "save_draft":
		return t.saveDraft(args)
	case "list_sent":
		return t.listSent(args)
	case "search":
		return t.search(args)
	default:
		return tools.Errorf("Unknown action: %s", action)
	}
}

// recipients normalizes a "to" argument that may be a single address or
// a list.
func recipients(v interface{}) []string {
	switch to := v.(type) {
	case string:
		if to == "" {
			return nil
		}
		return []string{to}
	case []interface{}:
		out := make([]string, 0, len(to))
		for _, item := range to {
			if addr, ok := item.(string); ok {
				out = append(out, addr)
			}
		}
		return out
	case []string:
		return to
	}
	return nil
}

func (t *Email) send(args map[string]interface{}) tools.Result {
	to := recipients(args["to"])
	if len(to) == 0 {
		return tools.Errorf("'to' recipient is required")
	}
	for _, addr := range to {
		if !strings.Contains(addr, "@") {
			return tools.Errorf("Invalid email address: %s", addr)
		}
	}

	emailID := uuid.NewString()[:8]
	email := map[string]interface{}{
		"id":      emailID,
		"to":      to,
		"cc":      recipients(args["cc"]),
		"bcc":     recipients(args["bcc"]),
		"subject": stringArg(args, "subject"),
		"body":    stringArg(args, "body"),
		"sent_at": t.now().UTC().Format(time.RFC3339),
		"status":  "sent",
	}
	t.sent = append(t.sent, email)

	return tools.OK(map[string]interface{}{
		"email_id":   emailID,
		"status":     "sent",
		"recipients": to,
	})
}

func (t *Email) listInbox(args map[string]interface{}) tools.Result {
	limit := intArg(args, "limit", 10)
	if limit < 0 {
		limit = 0
	}
	unreadOnly := boolArg(args, "unread_only")

	summaries := make([]interface{}, 0, limit)
	for _, email := range t.inbox {
		if len(summaries) >= limit {
			break
		}
		read, _ := email["read"].(bool)
		if unreadOnly && read {
			continue
		}
		summaries = append(summaries, map[string]interface{}{
			"id":          email["id"],
			"from":        email["from"],
			"subject":     email["subject"],
			"received_at": email["received_at"],
			"read":        read,
		})
	}

	return tools.OK(map[string]interface{}{"emails": summaries, "count": len(summaries)})
}

func (t *Email) read(args map[string]interface{}) tools.Result {
	emailID := stringArg(args, "email_id")
	if emailID == "" {
		return tools.Errorf("email_id is required")
	}

	for _, email := range t.inbox {
		if email["id"] == emailID {
			email["read"] = true
			return tools.OK(email)
		}
	}
	for _, email := range t.sent {
		if email["id"] == emailID {
			return tools.OK(email)
		}
	}

	return tools.Errorf("Email not found: %s", emailID)
}

func (t *Email) saveDraft(args map[string]interface{}) tools.Result {
	draftID := uuid.NewString()[:8]
	draft := map[string]interface{}{
		"id":         draftID,
		"to":         recipients(args["to"]),
		"subject":    stringArg(args, "subject"),
		"body":       stringArg(args, "body"),
		"created_at": t.now().UTC().Format(time.RFC3339),
		"status":     "draft",
	}
	t.drafts = append(t.drafts, draft)

	return tools.OK(map[string]interface{}{"draft_id": draftID, "status": "saved"})
}

func (t *Email) listSent(args map[string]interface{}) tools.Result {
	limit := intArg(args, "limit", 10)
	if limit < 0 {
		limit = 0
	}

	summaries := make([]interface{}, 0, limit)
	for _, email := range t.sent {
		if len(summaries) >= limit {
			break
		}
		summaries = append(summaries, map[string]interface{}{
			"id":      email["id"],
			"to":      email["to"],
			"subject": email["subject"],
			"sent_at": email["sent_at"],
		})
	}

	return tools.OK(map[string]interface{}{"emails": summaries, "count": len(summaries)})
}

func (t *Email) search(args map[string]interface{}) tools.Result {
	query := strings.ToLower(stringArg(args, "query"))
	if query == "" {
		return tools.Errorf("query is required")
	}

	matches := func(email map[string]interface{}) bool {
		subject, _ := email["subject"].(string)
		body, _ := email["body"].(string)
		return strings.Contains(strings.ToLower(subject), query) ||
			strings.Contains(strings.ToLower(body), query)
	}

	results := make([]interface{}, 0)
	for _, email := range t.inbox {
		if matches(email) {
			results = append(results, map[string]interface{}{
				"id":       email["id"],
				"from":     email["from"],
				"subject":  email["subject"],
				"location": "inbox",
			})
		}
	}
	for _, email := range t.sent {
		if matches(email) {
			results = append(results, map[string]interface{}{
				"id":       email["id"],
				"to":       email["to"],
				"subject":  email["subject"],
				"location": "sent",
			})
		}
	}

	return tools.OK(map[string]interface{}{"query": query, "results": results, "count": len(results)})
}

func (t *Email) Actions() []tools.ActionSpec {
	return []tools.ActionSpec{
		{
			Name:        "send",
			Description: "Send an email",
			Parameters: objectSchema(map[string]schema.JSON{
				"to":      stringProp("Recipient email address"),
				"subject": stringProp("Email subject"),
				"body":    stringProp("Email body"),
				"cc": {
					Type:        "array",
					Items:       schema.JSON{Type: "string"},
					Description: "CC recipients",
				},
			}, "to"),
		},
		{
			Name:        "list_inbox",
			Description: "List emails in inbox",
			Parameters: objectSchema(map[string]schema.JSON{
				"limit":       integerProp("Max emails to return"),
				"unread_only": booleanProp("Only unread emails"),
			}),
		},
		{
			Name:        "read",
			Description: "Read a specific email by ID",
			Parameters: objectSchema(map[string]schema.JSON{
				"email_id": stringProp("Email ID to read"),
			}, "email_id"),
		},
		{
			Name:        "save_draft",
			Description: "Save an email as draft",
			Parameters: objectSchema(map[string]schema.JSON{
				"to":      stringProp("Recipient email"),
				"subject": stringProp("Email subject"),
				"body":    stringProp("Email body"),
			}),
		},
		{
			Name:        "list_sent",
			Description: "List sent emails",
			Parameters: objectSchema(map[string]schema.JSON{
				"limit": integerProp("Max emails to return"),
			}),
		},
		{
			Name:        "search",
			Description: "Search emails by content",
			Parameters: objectSchema(map[string]schema.JSON{
				"query": stringProp("Search query"),
			}, "query"),
		},
	}
}
