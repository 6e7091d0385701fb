package notifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/notifier"
)

func TestHTTPGateway_Send(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		To        string   `json:"to"`
		Template  string   `json:"template"`
		Variables []string `json:"variables"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := notifier.NewHTTPGateway(config.Notifier{
		GatewayURL: server.URL,
		Token:      "gw-token",
		Template:   "nueva_notificacion",
	})

	err := gateway.Send(context.Background(), "+5216671234567", notifier.Message{
		CaseRef:     "123/2025",
		SourceLabel: "Tribunal Electrónico",
		Location:    "Culiacán",
		Body:        "Acuerdo de trámite",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer gw-token", gotAuth)
	assert.Equal(t, "+5216671234567", gotBody.To)
	assert.Equal(t, "nueva_notificacion", gotBody.Template)
	assert.Equal(t, []string{"123/2025", "Tribunal Electrónico", "Culiacán", "Acuerdo de trámite"}, gotBody.Variables)
}

func TestHTTPGateway_Send_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"unknown template"}`))
	}))
	defer server.Close()

	gateway := notifier.NewHTTPGateway(config.Notifier{GatewayURL: server.URL})

	err := gateway.Send(context.Background(), "+521", notifier.Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestHTTPGateway_Send_Unreachable(t *testing.T) {
	gateway := notifier.NewHTTPGateway(config.Notifier{GatewayURL: "http://127.0.0.1:1"})

	err := gateway.Send(context.Background(), "+521", notifier.Message{})
	assert.Error(t, err)
}
