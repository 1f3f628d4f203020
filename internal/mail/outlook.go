package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/model"
)

const (
	graphBaseURL  = "https://graph.microsoft.com/v1.0"
	graphPageSize = 50
)

// OutlookRetriever reads bank mail through Microsoft Graph
type OutlookRetriever struct {
	baseURL    string
	httpClient *http.Client
	ocr        ImageTextRecognizer
	maxImages  int
	now        func() time.Time
}

// NewOutlookRetriever creates a Graph retriever. An empty baseURL means the public Graph endpoint.
func NewOutlookRetriever(ocr ImageTextRecognizer, maxImages int, baseURL string, client *http.Client) *OutlookRetriever {
	if ocr == nil {
		ocr = NoopRecognizer{}
	}
	if baseURL == "" {
		baseURL = graphBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OutlookRetriever{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		ocr:        ocr,
		maxImages:  maxImages,
		now:        time.Now,
	}
}

func (r *OutlookRetriever) Provider() model.Provider {
	return model.ProviderOutlook
}

type graphMessage struct {
	ID                string    `json:"id"`
	InternetMessageID string    `json:"internetMessageId"`
	Subject           string    `json:"subject"`
	BodyPreview       string    `json:"bodyPreview"`
	ReceivedDateTime  time.Time `json:"receivedDateTime"`
	From              struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

func (m graphMessage) fromHeader() string {
	addr := m.From.EmailAddress
	if addr.Name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
}

type graphPage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// Fetch pages through the mailbox, filters client-side and loads each MIME source
func (r *OutlookRetriever) Fetch(ctx context.Context, accessToken string, daysBack int) ([]model.RawEmail, error) {
	filter := NewFilter(daysBack, r.now())

	q := url.Values{}
	q.Set("$filter", "receivedDateTime ge "+filter.Cutoff.UTC().Format(time.RFC3339))
	q.Set("$select", "id,internetMessageId,subject,from,receivedDateTime,bodyPreview")
	q.Set("$orderby", "receivedDateTime asc")
	q.Set("$top", fmt.Sprint(graphPageSize))
	next := r.baseURL + "/me/messages?" + q.Encode()

	var candidates []graphMessage
	for next != "" {
		var page graphPage
		if err := r.getJSON(ctx, accessToken, next, &page); err != nil {
			return nil, &ProviderFetchError{Provider: model.ProviderOutlook, Op: "list", Err: err}
		}
		for _, m := range page.Value {
			if filter.Matches(m.fromHeader(), m.Subject) {
				candidates = append(candidates, m)
			}
		}
		next = page.NextLink
	}

	emails := make([]model.RawEmail, 0, len(candidates))
	for _, m := range candidates {
		raw, err := r.get(ctx, accessToken, r.baseURL+"/me/messages/"+url.PathEscape(m.ID)+"/$value")
		if err != nil {
			return nil, &ProviderFetchError{Provider: model.ProviderOutlook, Op: "get " + m.ID, Err: err}
		}
		emails = append(emails, r.toRawEmail(ctx, m, raw))
	}

	sortByReceived(emails)
	logrus.WithField("provider", model.ProviderOutlook).Infof("Fetched %d messages", len(emails))
	return emails, nil
}

func (r *OutlookRetriever) toRawEmail(ctx context.Context, m graphMessage, raw []byte) model.RawEmail {
	email := model.RawEmail{
		MessageID:    m.InternetMessageID,
		Subject:      m.Subject,
		From:         m.fromHeader(),
		Snippet:      m.BodyPreview,
		ReceivedDate: m.ReceivedDateTime.UTC(),
	}
	if email.MessageID == "" {
		email.MessageID = m.ID
	}

	fields := logrus.Fields{"provider": model.ProviderOutlook, "message_id": email.MessageID}
	parts, err := walkMIME(raw)
	if err != nil {
		logrus.WithFields(fields).Warnf("Failed to parse MIME source, using preview: %v", err)
		email.Body = m.BodyPreview
		return email
	}
	email.Body = appendImageText(parts.text(), recognizeAll(ctx, r.ocr, parts.images, r.maxImages, fields))
	return email
}

// walkMIME visits the entity tree depth-first. Transfer and charset decoding happen in go-message.
func walkMIME(raw []byte) (bodyParts, error) {
	var parts bodyParts
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return parts, fmt.Errorf("failed to read message: %w", err)
	}

	mediaType, _, _ := entity.Header.ContentType()
	if !strings.HasPrefix(strings.ToLower(mediaType), "multipart/") {
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return parts, fmt.Errorf("failed to read message body: %w", err)
		}
		if strings.EqualFold(mediaType, "text/html") {
			parts.direct = htmlToText(string(body))
		} else if !isImage(mediaType) {
			parts.direct = string(body)
		}
		return parts, nil
	}

	err = entity.Walk(func(_ []int, e *message.Entity, err error) error {
		if err != nil {
			if message.IsUnknownCharset(err) {
				return nil
			}
			return err
		}
		mediaType, _, _ := e.Header.ContentType()
		mediaType = strings.ToLower(mediaType)
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			return nil
		case mediaType == "text/plain" && parts.plain == "":
			body, err := io.ReadAll(e.Body)
			if err != nil {
				return err
			}
			parts.plain = string(body)
		case mediaType == "text/html" && parts.html == "":
			body, err := io.ReadAll(e.Body)
			if err != nil {
				return err
			}
			parts.html = string(body)
		case isImage(mediaType):
			body, err := io.ReadAll(e.Body)
			if err != nil {
				return err
			}
			parts.images = append(parts.images, imagePart{mimeType: mediaType, data: body})
		}
		return nil
	})
	if err != nil {
		return parts, fmt.Errorf("failed to walk message parts: %w", err)
	}
	return parts, nil
}

func (r *OutlookRetriever) getJSON(ctx context.Context, accessToken, endpoint string, out interface{}) error {
	body, err := r.get(ctx, accessToken, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

func (r *OutlookRetriever) get(ctx context.Context, accessToken, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
