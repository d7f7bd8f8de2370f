// Package mail exposes Gmail search, draft creation and conversation
// summaries as tools. Drafts are saved, never sent.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/PuerkitoBio/goquery"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

const (
	me = "me"

	// maxBody truncates decoded bodies in tool results.
	maxBody = 2000

	// Results returned per search; fewer when bodies are included.
	maxResults         = 5
	maxResultsWithBody = 3
)

// Service wraps an authorized Gmail client.
type Service struct {
	gmail  *gmail.Service
	model  ports.ChatModel
	logger *zap.Logger
}

// NewService creates a Service. model is used by Summarize and may be nil
// if summaries are not needed.
func NewService(svc *gmail.Service, model ports.ChatModel, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gmail: svc, model: model, logger: logger.Named("mail")}
}

// FindOptions are the search filters of find_mails. Dates are YYYY-MM-DD.
type FindOptions struct {
	Sender        string `json:"sender"`
	Query         string `json:"query"`
	After         string `json:"start_date"`
	Before        string `json:"end_date"`
	Unread        bool   `json:"is_unread"`
	HasAttachment bool   `json:"has_attachment"`
	ExcludeLabel  string `json:"exclude_label"`
	Label         string `json:"search_in_label"`
	IncludeBody   bool   `json:"include_body"`
}

// SearchExpression renders o as a Gmail search expression.
func (o FindOptions) SearchExpression() string {
	var ops []string
	if o.Sender != "" {
		ops = append(ops, fmt.Sprintf("from:(%s)", o.Sender))
	}
	if o.Query != "" {
		ops = append(ops, o.Query)
	}
	if o.Unread {
		ops = append(ops, "is:unread")
	}
	if o.HasAttachment {
		ops = append(ops, "has:attachment")
	}
	if o.After != "" {
		ops = append(ops, "after:"+strings.ReplaceAll(o.After, "-", "/"))
	}
	if o.Before != "" {
		ops = append(ops, "before:"+strings.ReplaceAll(o.Before, "-", "/"))
	}
	if o.ExcludeLabel != "" {
		ops = append(ops, "-label:"+o.ExcludeLabel)
	}
	if o.Label != "" && o.Label != "draft" {
		ops = append([]string{"in:" + o.Label}, ops...)
	}
	return strings.Join(ops, " ")
}

// Mail is one message or draft in a find_mails result.
type Mail struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
	Body    string `json:"body,omitempty"`
}

// Find searches messages, or drafts when o.Label is "draft". Items that
// fail to load are skipped.
func (s *Service) Find(ctx context.Context, o FindOptions) ([]Mail, error) {
	q := o.SearchExpression()
	limit := maxResults
	if o.IncludeBody {
		limit = maxResultsWithBody
	}

	var out []Mail
	if o.Label == "draft" {
		resp, err := s.gmail.Users.Drafts.List(me).Q(q).MaxResults(int64(limit)).Context(ctx).Do()
		if err != nil {
			return nil, errors.Wrap(err, "list drafts")
		}
		for _, d := range resp.Drafts {
			full, err := s.gmail.Users.Drafts.Get(me, d.Id).Format("full").Context(ctx).Do()
			if err != nil || full.Message == nil {
				s.logger.Warn("skip draft", zap.String("id", d.Id), zap.Error(err))
				continue
			}
			m := toMail(full.Message, o.IncludeBody)
			m.ID, m.Type, m.From = d.Id, "draft", "나 (초안)"
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}

	resp, err := s.gmail.Users.Messages.List(me).Q(q).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	format := "metadata"
	if o.IncludeBody {
		format = "full"
	}
	for _, stub := range resp.Messages {
		msg, err := s.gmail.Users.Messages.Get(me, stub.Id).Format(format).Context(ctx).Do()
		if err != nil {
			s.logger.Warn("skip message", zap.String("id", stub.Id), zap.Error(err))
			continue
		}
		out = append(out, toMail(msg, o.IncludeBody))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Draft saves a plain-text draft addressed to recipient and returns its id.
func (s *Service) Draft(ctx context.Context, recipient, subject, body string) (string, error) {
	raw := ComposeRaw(recipient, subject, body)
	d, err := s.gmail.Users.Drafts.Create(me, &gmail.Draft{Message: &gmail.Message{Raw: raw}}).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "create draft")
	}
	return d.Id, nil
}

// Summarize finds the latest thread with person and asks the model for a
// two to three sentence Korean summary of its snippets.
func (s *Service) Summarize(ctx context.Context, person string) (string, error) {
	q := fmt.Sprintf("from:%s OR to:%s", person, person)
	resp, err := s.gmail.Users.Threads.List(me).Q(q).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "list threads")
	}
	if len(resp.Threads) == 0 {
		return fmt.Sprintf("'%s'님과의 대화를 찾을 수 없습니다.", person), nil
	}

	thread, err := s.gmail.Users.Threads.Get(me, resp.Threads[0].Id).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "get thread")
	}
	var conv strings.Builder
	for _, m := range thread.Messages {
		conv.WriteString(m.Snippet)
		conv.WriteString("\n---\n")
	}

	if s.model == nil {
		return conv.String(), nil
	}
	zero := 0.0
	reply, err := s.model.Chat(ctx, ports.ChatRequest{
		Messages: []domain.Message{domain.UserMessage(
			"다음 이메일 대화 내용을 한글로 2~3문장으로 간결하게 요약해 주세요:\n\n[대화 내용]\n" + conv.String())},
		Temperature: &zero,
	})
	if err != nil {
		return "", errors.Wrap(err, "summarize conversation")
	}
	return reply.Message.Content, nil
}

// ComposeRaw builds a base64url RFC 2822 message with UTF-8 headers and
// body.
func ComposeRaw(recipient, subject, body string) string {
	var to string
	if addr, err := mail.ParseAddress(recipient); err == nil {
		to = addr.String()
	} else {
		to = mime.BEncoding.Encode("UTF-8", recipient)
	}

	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(body)))
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func toMail(msg *gmail.Message, includeBody bool) Mail {
	m := Mail{ID: msg.Id, Type: "message", Snippet: msg.Snippet, Subject: "제목 없음", Date: "날짜 정보 없음", From: "N/A"}
	if msg.Payload == nil {
		return m
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			m.From = h.Value
		case "subject":
			m.Subject = h.Value
		case "date":
			m.Date = h.Value
		}
	}
	if includeBody {
		m.Body = truncate(extractBody(msg.Payload), maxBody)
	}
	return m
}

// extractBody prefers a text/plain part and falls back to the text of an
// HTML part.
func extractBody(p *gmail.MessagePart) string {
	if len(p.Parts) == 0 {
		text := decodePart(p)
		if strings.HasPrefix(p.MimeType, "text/html") {
			return htmlText(text)
		}
		return text
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" {
			if text := decodePart(part); text != "" {
				return text
			}
		}
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/html" {
			if text := decodePart(part); text != "" {
				return htmlText(text)
			}
		}
		if strings.HasPrefix(part.MimeType, "multipart/") {
			if text := extractBody(part); text != "" {
				return text
			}
		}
	}
	return ""
}

func decodePart(p *gmail.MessagePart) string {
	if p.Body == nil || p.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.DecodeString(p.Body.Data)
	if err != nil {
		if data, err = base64.RawURLEncoding.DecodeString(p.Body.Data); err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(data), "�")
}

func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()
	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
