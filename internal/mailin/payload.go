// Package mailin defines the CloudMailin inbound-email notification model.
package mailin

import (
	"encoding/json"
	"strings"
)

// Payload represents a CloudMailin JSON notification. Every field is
// optional: CloudMailin omits sections it has no data for, and older
// accounts deliver slightly different envelope shapes. Callers must go
// through the accessor methods, which encode the fallback order for each
// logical field.
type Payload struct {
	Headers     map[string]any `json:"headers"`
	Envelope    *Envelope      `json:"envelope"`
	Plain       string         `json:"plain"`
	ReplyPlain  string         `json:"reply_plain"`
	Attachments []Attachment   `json:"attachments"`
}

// Envelope holds the SMTP envelope as reported by CloudMailin.
// Recipients is the current field name; To is the legacy one.
type Envelope struct {
	From       string     `json:"from"`
	Recipients StringList `json:"recipients"`
	To         StringList `json:"to"`
	SPF        *SPF       `json:"spf"`
	TLS        bool       `json:"tls"`
}

// SPF holds the SPF verification result for the sending host.
type SPF struct {
	Result string `json:"result"`
	Domain string `json:"domain"`
}

// Attachment represents one attachment entry of a notification.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Disposition string `json:"disposition"`
	Content     string `json:"content"`
}

// StringList decodes a JSON value that may be either a single string or an
// array of strings. CloudMailin has sent both shapes for envelope recipients.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
			return nil
		}
		*l = StringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		// Tolerate arrays with mixed or null entries rather than failing
		// the whole notification.
		var raw []any
		if rawErr := json.Unmarshal(data, &raw); rawErr != nil {
			return err
		}
		many = nil
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				many = append(many, s)
			}
		}
	}
	*l = many
	return nil
}

// Header returns the named header value, or "" if absent. CloudMailin sends
// a header value as a plain string, or as an array of strings when the
// header appears more than once; in the array case the first entry wins.
func (p *Payload) Header(name string) string {
	if p.Headers == nil {
		return ""
	}
	switch v := p.Headers[name].(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// From returns the sender: the From header, else the envelope sender.
func (p *Payload) From() string {
	if v := p.Header("from"); v != "" {
		return v
	}
	if p.Envelope != nil {
		return p.Envelope.From
	}
	return ""
}

// To returns the recipients: the To header, else a comma-separated join of
// the envelope recipients with empty entries dropped.
func (p *Payload) To() string {
	if v := p.Header("to"); v != "" {
		return v
	}
	if p.Envelope == nil {
		return ""
	}
	recipients := p.Envelope.Recipients
	if len(recipients) == 0 {
		recipients = p.Envelope.To
	}
	parts := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}

// Subject returns the Subject header, or "".
func (p *Payload) Subject() string {
	return p.Header("subject")
}

// Date returns the Date header, or "".
func (p *Payload) Date() string {
	return p.Header("date")
}

// MessageID returns the Message-ID header, or "".
func (p *Payload) MessageID() string {
	return p.Header("message_id")
}

// Body returns the text to relay: the plain body if non-empty, else the
// reply-extract fallback, else "".
func (p *Payload) Body() string {
	if p.Plain != "" {
		return p.Plain
	}
	return p.ReplyPlain
}
