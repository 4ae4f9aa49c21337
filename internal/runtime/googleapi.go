// Package runtime wires the triage engine to the real Google API surface.
package runtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/mailtriage/internal/gmail"
)

type googleClient struct{ svc *gmail.Service }

// NewGoogleAPIClient adapts *gmail.Service to the narrow client interface.
func NewGoogleAPIClient(svc *gmail.Service) gc.Client { return &googleClient{svc} }

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List("me").Q(q.Raw).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, err
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) Get(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.svc.Users.Messages.Get("me", string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return gc.Message{}, err
	}
	out := gc.Message{
		ID:      id,
		Snippet: msg.Snippet,
		Date:    time.UnixMilli(msg.InternalDate),
	}
	for _, lid := range msg.LabelIds {
		out.LabelIDs = append(out.LabelIDs, gc.LabelID(lid))
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch {
			case strings.EqualFold(h.Name, "From"):
				out.Sender = h.Value
			case strings.EqualFold(h.Name, "Subject"):
				out.Subject = h.Value
			case strings.EqualFold(h.Name, "List-Unsubscribe"):
				out.Unsubscribe = h.Value
			}
		}
		out.Text = extractText(msg.Payload)
	}
	return out, nil
}

// extractText walks the MIME tree and returns the first decodable
// text/plain body, falling back to text/html.
func extractText(part *gmail.MessagePart) string {
	if body := findBody(part, "text/plain"); body != "" {
		return body
	}
	return findBody(part, "text/html")
}

func findBody(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if decoded, err := decodeBody(part.Body.Data); err == nil {
			return decoded
		}
	}
	for _, child := range part.Parts {
		if body := findBody(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	lr, err := g.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, nil, err
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

func (g *googleClient) CreateLabel(ctx context.Context, name string) (gc.LabelID, error) {
	created, err := g.svc.Users.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	return gc.LabelID(created.Id), nil
}

func (g *googleClient) Modify(ctx context.Context, id gc.MessageID, ops gc.LabelOps) error {
	req := &gmail.ModifyMessageRequest{}
	for _, lid := range ops.Add {
		req.AddLabelIds = append(req.AddLabelIds, string(lid))
	}
	for _, lid := range ops.Remove {
		req.RemoveLabelIds = append(req.RemoveLabelIds, string(lid))
	}
	_, err := g.svc.Users.Messages.Modify("me", string(id), req).Context(ctx).Do()
	return err
}

func (g *googleClient) Trash(ctx context.Context, id gc.MessageID) error {
	_, err := g.svc.Users.Messages.Trash("me", string(id)).Context(ctx).Do()
	return err
}
