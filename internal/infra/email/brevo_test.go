package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"medirate_alerts/internal/domain/notification"
	"medirate_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrevoGateway_Send(t *testing.T) {
	var got sendRequest
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<abc@smtp>"}`))
	}))
	defer srv.Close()

	log, hook := testutil.Logger()
	g := NewBrevoGateway(srv.URL, "secret", Contact{Name: "Medirate", Email: "contact@medirate.net"}, log)

	err := g.Send(context.Background(), notification.Message{
		To:      "ann@example.com",
		Subject: "New Medicaid Alerts Relevant to You - 2 Updates",
		HTML:    "<p>hi</p>",
		Records: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/smtp/email", gotPath)
	assert.Equal(t, Contact{Name: "Medirate", Email: "contact@medirate.net"}, got.Sender)
	assert.Equal(t, []Contact{{Email: "ann@example.com"}}, got.To)
	assert.Equal(t, "<p>hi</p>", got.HTMLContent)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "<abc@smtp>", hook.LastEntry().Data["message_id"])
}

func TestBrevoGateway_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_parameter","message":"email is not valid"}`))
	}))
	defer srv.Close()

	log, _ := testutil.Logger()
	g := NewBrevoGateway(srv.URL, "secret", Contact{Email: "contact@medirate.net"}, log)

	err := g.Send(context.Background(), notification.Message{To: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "email is not valid")
}

func TestBrevoGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	log, _ := testutil.Logger()
	g := NewBrevoGateway(url, "secret", Contact{Email: "contact@medirate.net"}, log)

	err := g.Send(context.Background(), notification.Message{To: "ann@example.com"})
	assert.ErrorContains(t, err, "failed to call brevo")
}
