package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mail-txn-ingest-go/internal/model"
)

const gmailUser = "me"

// GmailRetriever reads bank mail through the Gmail REST API
type GmailRetriever struct {
	ocr       ImageTextRecognizer
	maxImages int
	// endpoint overrides the API base URL, used against fake servers
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// GmailOption customizes a GmailRetriever
type GmailOption func(*GmailRetriever)

// WithGmailEndpoint points the retriever at another API base URL
func WithGmailEndpoint(endpoint string, client *http.Client) GmailOption {
	return func(r *GmailRetriever) {
		r.endpoint = endpoint
		r.httpClient = client
	}
}

// NewGmailRetriever creates a Gmail retriever
func NewGmailRetriever(ocr ImageTextRecognizer, maxImages int, opts ...GmailOption) *GmailRetriever {
	if ocr == nil {
		ocr = NoopRecognizer{}
	}
	r := &GmailRetriever{ocr: ocr, maxImages: maxImages, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GmailRetriever) Provider() model.Provider {
	return model.ProviderGmail
}

func (r *GmailRetriever) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if r.endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}

// Fetch lists every matching message in the window and loads each in full
func (r *GmailRetriever) Fetch(ctx context.Context, accessToken string, daysBack int) ([]model.RawEmail, error) {
	svc, err := r.service(ctx, accessToken)
	if err != nil {
		return nil, &ProviderFetchError{Provider: model.ProviderGmail, Op: "init", Err: err}
	}

	query := NewFilter(daysBack, r.now()).GmailQuery()
	var ids []string
	pageToken := ""
	for {
		call := svc.Users.Messages.List(gmailUser).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, &ProviderFetchError{Provider: model.ProviderGmail, Op: "list", Err: err}
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	emails := make([]model.RawEmail, 0, len(ids))
	for _, id := range ids {
		msg, err := svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, &ProviderFetchError{Provider: model.ProviderGmail, Op: "get " + id, Err: err}
		}
		emails = append(emails, r.toRawEmail(ctx, svc, msg))
	}

	sortByReceived(emails)
	logrus.WithField("provider", model.ProviderGmail).Infof("Fetched %d messages", len(emails))
	return emails, nil
}

func (r *GmailRetriever) toRawEmail(ctx context.Context, svc *gmail.Service, msg *gmail.Message) model.RawEmail {
	email := model.RawEmail{
		MessageID:    msg.Id,
		Snippet:      html.UnescapeString(msg.Snippet),
		ReceivedDate: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return email
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			email.Subject = h.Value
		case "from":
			email.From = h.Value
		}
	}

	var parts bodyParts
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" && len(msg.Payload.Parts) == 0 {
		if data, err := decodeBase64URL(msg.Payload.Body.Data); err == nil {
			if strings.EqualFold(msg.Payload.MimeType, "text/html") {
				parts.direct = htmlToText(string(data))
			} else {
				parts.direct = string(data)
			}
		}
	}
	walkGmailParts(msg.Payload, &parts)

	fields := logrus.Fields{"provider": model.ProviderGmail, "message_id": msg.Id}
	images := r.loadAttachments(ctx, svc, msg.Id, parts.images, fields)
	email.Body = appendImageText(parts.text(), recognizeAll(ctx, r.ocr, images, r.maxImages, fields))
	return email
}

// walkGmailParts is a depth-first walk keeping the first plain and html parts
func walkGmailParts(part *gmail.MessagePart, parts *bodyParts) {
	for _, p := range part.Parts {
		mimeType := strings.ToLower(p.MimeType)
		switch {
		case strings.HasPrefix(mimeType, "multipart/"):
			walkGmailParts(p, parts)
		case mimeType == "text/plain" && parts.plain == "":
			parts.plain = gmailPartData(p)
		case mimeType == "text/html" && parts.html == "":
			parts.html = gmailPartData(p)
		case isImage(mimeType) && p.Body != nil:
			img := imagePart{mimeType: mimeType, attachmentID: p.Body.AttachmentId}
			if p.Body.Data != "" {
				if data, err := decodeBase64URL(p.Body.Data); err == nil {
					img.data = data
				}
			}
			parts.images = append(parts.images, img)
		}
	}
}

func gmailPartData(p *gmail.MessagePart) string {
	if p.Body == nil || p.Body.Data == "" {
		return ""
	}
	data, err := decodeBase64URL(p.Body.Data)
	if err != nil {
		return ""
	}
	return string(data)
}

func (r *GmailRetriever) loadAttachments(ctx context.Context, svc *gmail.Service, messageID string, images []imagePart, fields logrus.Fields) []imagePart {
	loaded := make([]imagePart, 0, len(images))
	for _, img := range images {
		if r.maxImages > 0 && len(loaded) >= r.maxImages {
			break
		}
		if len(img.data) == 0 && img.attachmentID != "" {
			att, err := svc.Users.Messages.Attachments.Get(gmailUser, messageID, img.attachmentID).Context(ctx).Do()
			if err != nil {
				logrus.WithFields(fields).Warnf("Failed to fetch image attachment: %v", err)
				continue
			}
			data, err := decodeBase64URL(att.Data)
			if err != nil {
				logrus.WithFields(fields).Warnf("Failed to decode image attachment: %v", err)
				continue
			}
			img.data = data
		}
		loaded = append(loaded, img)
	}
	return loaded
}

// decodeBase64URL accepts both padded and unpadded URL-safe base64
func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode body data: %w", err)
	}
	return data, nil
}
