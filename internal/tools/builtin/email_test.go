package builtin

import (
	"testing"
	"time"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmail() *Email {
	tool := NewEmail(&ast.ToolRef{
		Name: "email",
		Type: TypeEmail,
		Config: map[string]any{
			"initial_inbox": []interface{}{
				map[string]interface{}{
					"id": "em1", "from": "boss@corp.example", "subject": "Quarterly report",
					"body": "Numbers are due Friday", "received_at": "2024-02-28T09:00:00Z", "read": false,
				},
				map[string]interface{}{
					"id": "em2", "from": "it@corp.example", "subject": "Password expiry",
					"body": "Rotate your password this week", "received_at": "2024-02-28T10:00:00Z", "read": true,
				},
			},
		},
	})
	tool.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return tool
}

func TestEmailSend(t *testing.T) {
	t.Run("Single Recipient", func(t *testing.T) {
		tool := newTestEmail()
		data := resultData(t, tool.Invoke("send", map[string]interface{}{
			"to":      "alice@example.com",
			"subject": "Hello",
			"body":    "Hi there",
		}, nil))

		assert.Equal(t, "sent", data["status"])
		assert.Len(t, data["email_id"], 8)
		assert.Equal(t, []string{"alice@example.com"}, data["recipients"])
	})

	t.Run("Recipient List", func(t *testing.T) {
		tool := newTestEmail()
		data := resultData(t, tool.Invoke("send", map[string]interface{}{
			"to": []interface{}{"alice@example.com", "bob@example.com"},
		}, nil))
		assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, data["recipients"])
	})

	t.Run("Missing Recipient", func(t *testing.T) {
		tool := newTestEmail()
		res := tool.Invoke("send", map[string]interface{}{"subject": "Hello"}, nil)
		require.False(t, res.Success)
		assert.Equal(t, "'to' recipient is required", res.Error)
	})

	t.Run("Invalid Address", func(t *testing.T) {
		tool := newTestEmail()
		res := tool.Invoke("send", map[string]interface{}{"to": "not-an-address"}, nil)
		require.False(t, res.Success)
		assert.Equal(t, "Invalid email address: not-an-address", res.Error)
	})
}

func TestEmailListInbox(t *testing.T) {
	tool := newTestEmail()

	t.Run("All", func(t *testing.T) {
		data := resultData(t, tool.Invoke("list_inbox", nil, nil))
		assert.Equal(t, 2, data["count"])

		emails := data["emails"].([]interface{})
		first := emails[0].(map[string]interface{})
		assert.Equal(t, "em1", first["id"])
		assert.Equal(t, "boss@corp.example", first["from"])
		assert.Equal(t, false, first["read"])
	})

	t.Run("Unread Only", func(t *testing.T) {
		data := resultData(t, tool.Invoke("list_inbox", map[string]interface{}{"unread_only": true}, nil))
		assert.Equal(t, 1, data["count"])
	})

	t.Run("Limit", func(t *testing.T) {
		data := resultData(t, tool.Invoke("list_inbox", map[string]interface{}{"limit": 1}, nil))
		assert.Equal(t, 1, data["count"])
	})

	t.Run("Negative Limit", func(t *testing.T) {
		data := resultData(t, tool.Invoke("list_inbox", map[string]interface{}{"limit": -3}, nil))
		assert.Equal(t, 0, data["count"])
	})
}

func TestEmailRead(t *testing.T) {
	tool := newTestEmail()

	t.Run("Marks Inbox Mail Read", func(t *testing.T) {
		data := resultData(t, tool.Invoke("read", map[string]interface{}{"email_id": "em1"}, nil))
		assert.Equal(t, "Quarterly report", data["subject"])
		assert.Equal(t, true, data["read"])

		unread := resultData(t, tool.Invoke("list_inbox", map[string]interface{}{"unread_only": true}, nil))
		assert.Equal(t, 0, unread["count"])
	})

	t.Run("Reads Sent Mail", func(t *testing.T) {
		sent := resultData(t, tool.Invoke("send", map[string]interface{}{
			"to":      "alice@example.com",
			"subject": "Follow up",
		}, nil))
		emailID := sent["email_id"].(string)

		data := resultData(t, tool.Invoke("read", map[string]interface{}{"email_id": emailID}, nil))
		assert.Equal(t, "Follow up", data["subject"])
		assert.Equal(t, "2024-03-01T12:00:00Z", data["sent_at"])
	})

	t.Run("Not Found", func(t *testing.T) {
		res := tool.Invoke("read", map[string]interface{}{"email_id": "nope"}, nil)
		require.False(t, res.Success)
		assert.Equal(t, "Email not found: nope", res.Error)
	})
}

func TestEmailSearch(t *testing.T) {
	tool := newTestEmail()
	resultData(t, tool.Invoke("send", map[string]interface{}{
		"to":      "it@corp.example",
		"subject": "Re: Password expiry",
		"body":    "Done, thanks.",
	}, nil))

	data := resultData(t, tool.Invoke("search", map[string]interface{}{"query": "PASSWORD"}, nil))
	assert.Equal(t, 2, data["count"])

	results := data["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "inbox", results[0].(map[string]interface{})["location"])
	assert.Equal(t, "sent", results[1].(map[string]interface{})["location"])

	res := tool.Invoke("search", map[string]interface{}{}, nil)
	require.False(t, res.Success)
	assert.Equal(t, "query is required", res.Error)
}

func TestEmailDraftsAndSent(t *testing.T) {
	tool := newTestEmail()

	draft := resultData(t, tool.Invoke("save_draft", map[string]interface{}{
		"to":      "alice@example.com",
		"subject": "WIP",
	}, nil))
	assert.Equal(t, "saved", draft["status"])
	assert.Len(t, draft["draft_id"], 8)

	// Drafts do not show up as sent mail.
	data := resultData(t, tool.Invoke("list_sent", nil, nil))
	assert.Equal(t, 0, data["count"])

	resultData(t, tool.Invoke("send", map[string]interface{}{"to": "alice@example.com", "subject": "One"}, nil))
	resultData(t, tool.Invoke("send", map[string]interface{}{"to": "bob@example.com", "subject": "Two"}, nil))

	data = resultData(t, tool.Invoke("list_sent", nil, nil))
	assert.Equal(t, 2, data["count"])
	emails := data["emails"].([]interface{})
	assert.Equal(t, "One", emails[0].(map[string]interface{})["subject"])
}
