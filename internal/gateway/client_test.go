package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibez-client/internal/auth"
	"vibez-client/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", auth.StaticTokenSource("test-token"), zerolog.Nop())
}

func TestRequestCarriesBearerToken(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]models.Room{})
	})

	_, err := client.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestMessagesReversedToAscending(t *testing.T) {
	roomID := uuid.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fmt.Sprintf("/api/chats/%s/messages", roomID), r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("size"))
		// The backend pages newest-first.
		fmt.Fprint(w, `{"content":[
            {"id":"`+uuid.NewString()+`","chatRoomId":"`+roomID.String()+`","content":"newest","timestamp":"2025-06-01T12:02:00"},
            {"id":"`+uuid.NewString()+`","chatRoomId":"`+roomID.String()+`","content":"oldest","timestamp":"2025-06-01T12:00:00"}
        ]}`)
	})

	msgs, err := client.Messages(context.Background(), roomID, 0, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "oldest", msgs[0].Content)
	assert.Equal(t, "newest", msgs[1].Content)
}

func TestErrorNormalizationFromMessageBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"user not found"}`)
	})

	_, err := client.PrivateChat(context.Background(), "ghost")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, KindNotFound, apiErr.Kind)
	assert.Equal(t, "user not found", apiErr.Message)
	assert.False(t, apiErr.Temporary())
}

func TestErrorNormalizationFromErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"name too long"}`)
	})

	_, err := client.GroupChat(context.Background(), []string{"bob"}, "x")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Equal(t, "name too long", apiErr.Message)
}

func TestErrorNormalizationUnparseableBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "<html>boom</html>")
	})

	_, err := client.Notifications(context.Background())
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindTransient, apiErr.Kind)
	assert.NotEmpty(t, apiErr.Message)
	assert.True(t, apiErr.Temporary())
}

func TestAuthStatusMapsToAuthKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ListRooms(context.Background())
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindAuth, apiErr.Kind)
	assert.False(t, apiErr.Temporary())
}

func TestValidationErrorsDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"bad request"}`)
	})

	// Well past the consecutive-failure threshold.
	for i := 0; i < 10; i++ {
		_, err := client.ListRooms(context.Background())
		apiErr, ok := AsAPIError(err)
		require.True(t, ok, "breaker must stay closed for validation errors, got %v", err)
		assert.Equal(t, KindValidation, apiErr.Kind)
	}
}

func TestUnreadNotificationCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications/unread-count", r.URL.Path)
		fmt.Fprint(w, "5")
	})

	count, err := client.UnreadNotificationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestMarkNotificationRead(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.MarkNotificationRead(context.Background(), 12))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/notifications/12/read", gotPath)
}
