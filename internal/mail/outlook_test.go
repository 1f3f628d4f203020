package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-txn-ingest-go/internal/model"
)

func graphMsg(id, internetID, from, subject, received string) map[string]interface{} {
	return map[string]interface{}{
		"id":                id,
		"internetMessageId": internetID,
		"subject":           subject,
		"bodyPreview":       "preview " + id,
		"receivedDateTime":  received,
		"from": map[string]interface{}{
			"emailAddress": map[string]string{"name": "Bank", "address": from},
		},
	}
}

func newFakeGraph(t *testing.T, mimeStatus int) (*httptest.Server, *[]string) {
	var fetched []string
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer outlook-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skiptoken") == "" {
			assert.True(t, strings.HasPrefix(r.URL.Query().Get("$filter"), "receivedDateTime ge "))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []interface{}{
					graphMsg("g1", "<a1@icici>", "alerts@icicibank.com", "Transaction alert", "2026-02-01T10:00:00Z"),
					graphMsg("g2", "", "news@shop.example", "Big sale", "2026-02-01T11:00:00Z"),
				},
				"@odata.nextLink": server.URL + "/me/messages?$skiptoken=2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				graphMsg("g3", "", "alerts@axisbank.com", "Your OTP", "2026-02-02T09:00:00Z"),
				graphMsg("g4", "", "alerts@axisbank.com", "Spent on card", "2026-01-31T09:00:00Z"),
			},
		})
	})
	mux.HandleFunc("/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/me/messages/"), "/$value")
		fetched = append(fetched, id)
		if mimeStatus != http.StatusOK {
			w.WriteHeader(mimeStatus)
			return
		}
		_, _ = w.Write([]byte("Content-Type: text/plain\r\n\r\nINR 1,200.00 spent " + id))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &fetched
}

func TestOutlookFetch(t *testing.T) {
	server, fetched := newFakeGraph(t, http.StatusOK)
	r := NewOutlookRetriever(nil, 3, server.URL, server.Client())

	emails, err := r.Fetch(context.Background(), "outlook-access", 3650)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.ElementsMatch(t, []string{"g1", "g4"}, *fetched)

	assert.Equal(t, "g4", emails[0].MessageID, "falls back to the graph id and sorts oldest first")
	assert.Equal(t, "<a1@icici>", emails[1].MessageID)
	assert.Equal(t, "Bank <alerts@icicibank.com>", emails[1].From)
	assert.Equal(t, "INR 1,200.00 spent g1", emails[1].Body)
	assert.Equal(t, "preview g1", emails[1].Snippet)
	assert.Equal(t, model.ProviderOutlook, r.Provider())
}

func TestOutlookFetchError(t *testing.T) {
	server, _ := newFakeGraph(t, http.StatusServiceUnavailable)
	r := NewOutlookRetriever(nil, 3, server.URL, server.Client())

	emails, err := r.Fetch(context.Background(), "outlook-access", 3650)
	assert.Nil(t, emails)

	var fetchErr *ProviderFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, model.ProviderOutlook, fetchErr.Provider)
	assert.Contains(t, fetchErr.Error(), "status 503")
}
