package crm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/range-medical/consent-api/internal/crm"
	"github.com/range-medical/consent-api/internal/types"
)

func submission() *types.ConsentSubmission {
	return &types.ConsentSubmission{
		ConsentType: "iv",
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       "jane@example.com",
		Phone:       "(555) 123-4567",
		ConsentDate: "08/28/2026",
	}
}

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

// crmServer fakes the CRM API: duplicate search, contact upsert, notes.
func crmServer(
	t *testing.T,
	existingContactID string,
	noteStatus int,
) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest
	mux := http.NewServeMux()

	mux.HandleFunc("GET /contacts/search/duplicate", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path})
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "2021-07-28", r.Header.Get("Version"))
		assert.Equal(t, "loc-1", r.URL.Query().Get("locationId"))

		if existingContactID == "" {
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]any{"id": existingContactID},
		})
	})

	mux.HandleFunc("POST /contacts/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]any{"id": "contact-new"},
		})
	})

	mux.HandleFunc("PUT /contacts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		w.Write([]byte(`{}`))
	})

	mux.HandleFunc("POST /contacts/{id}/notes", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		w.WriteHeader(noteStatus)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func TestSyncConsent(t *testing.T) {
	t.Run("CreatesNewContact", func(t *testing.T) {
		server, requests := crmServer(t, "", http.StatusOK)
		client := crm.NewClient(server.URL, "test-key", "loc-1")

		contactID, err := client.SyncConsent(context.Background(), submission(), "https://store/consents/doc.pdf")

		require.NoError(t, err)
		assert.Equal(t, "contact-new", contactID)

		require.Len(t, *requests, 3)
		create := (*requests)[1]
		assert.Equal(t, http.MethodPost, create.method)
		assert.Equal(t, "/contacts/", create.path)
		assert.Equal(t, "loc-1", create.body["locationId"])
		assert.Equal(t, "+15551234567", create.body["phone"])
		assert.Equal(t, []any{"iv-signed"}, create.body["tags"])

		fields := create.body["customFields"].([]any)
		require.Len(t, fields, 1)
		field := fields[0].(map[string]any)
		assert.Equal(t, "g6pd_critical", field["key"])
		assert.Equal(t, "false", field["field_value"])

		note := (*requests)[2]
		assert.Equal(t, "/contacts/contact-new/notes", note.path)
		assert.Contains(t, note.body["body"], "https://store/consents/doc.pdf")
	})

	t.Run("UpdatesExistingContact", func(t *testing.T) {
		server, requests := crmServer(t, "contact-42", http.StatusOK)
		client := crm.NewClient(server.URL, "test-key", "loc-1")

		contactID, err := client.SyncConsent(context.Background(), submission(), "")

		require.NoError(t, err)
		assert.Equal(t, "contact-42", contactID)

		require.Len(t, *requests, 3)
		update := (*requests)[1]
		assert.Equal(t, http.MethodPut, update.method)
		assert.Equal(t, "/contacts/contact-42", update.path)
		_, hasLocation := update.body["locationId"]
		assert.False(t, hasLocation, "update must not carry locationId")
	})

	t.Run("PrefilledContactSkipsSearch", func(t *testing.T) {
		server, requests := crmServer(t, "", http.StatusOK)
		client := crm.NewClient(server.URL, "test-key", "loc-1")

		sub := submission()
		sub.CRMContactID = "contact-7"
		contactID, err := client.SyncConsent(context.Background(), sub, "")

		require.NoError(t, err)
		assert.Equal(t, "contact-7", contactID)

		require.Len(t, *requests, 2)
		assert.Equal(t, http.MethodPut, (*requests)[0].method)
		assert.Equal(t, "/contacts/contact-7", (*requests)[0].path)
	})

	t.Run("NoteFailureIsNotFatal", func(t *testing.T) {
		server, _ := crmServer(t, "", http.StatusInternalServerError)
		client := crm.NewClient(server.URL, "test-key", "loc-1")

		contactID, err := client.SyncConsent(context.Background(), submission(), "")

		require.NoError(t, err)
		assert.Equal(t, "contact-new", contactID)
	})

	t.Run("CriticalFlagInCustomField", func(t *testing.T) {
		server, requests := crmServer(t, "", http.StatusOK)
		client := crm.NewClient(server.URL, "test-key", "loc-1")

		sub := submission()
		sub.CriticalFlag = true
		_, err := client.SyncConsent(context.Background(), sub, "")

		require.NoError(t, err)
		create := (*requests)[1]
		field := create.body["customFields"].([]any)[0].(map[string]any)
		assert.Equal(t, "true", field["field_value"])

		note := (*requests)[2]
		assert.Contains(t, note.body["body"], "G6PD CRITICAL")
	})

	t.Run("UpsertErrorPropagates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)
		client := crm.NewClient(server.URL, "test-key", "loc-1")

		_, err := client.SyncConsent(context.Background(), submission(), "")

		require.Error(t, err)
	})
}

func TestNormalizePhoneThroughPayload(t *testing.T) {
	cases := []struct {
		name  string
		phone string
		want  string
	}{
		{"TenDigits", "555-123-4567", "+15551234567"},
		{"ElevenWithCountry", "1 (555) 123-4567", "+15551234567"},
		{"NonUSPassesThrough", "+44 20 7946 0958", "+44 20 7946 0958"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, requests := crmServer(t, "", http.StatusOK)
			client := crm.NewClient(server.URL, "test-key", "loc-1")

			sub := submission()
			sub.Phone = tc.phone
			_, err := client.SyncConsent(context.Background(), sub, "")

			require.NoError(t, err)
			create := (*requests)[1]
			assert.Equal(t, tc.want, create.body["phone"])
		})
	}
}
