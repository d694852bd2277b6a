package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/castellan/pkg/models"
)

func completion(content string) chatResponse {
	var r chatResponse
	r.Choices = append(r.Choices, struct {
		Message chatMessage `json:"message"`
	}{Message: chatMessage{Role: "assistant", Content: content}})
	return r
}

func TestAnalyze_ParsesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "DC-01")
		assert.Contains(t, req.Messages[1].Content, "Similar recent events")

		_ = json.NewEncoder(w).Encode(completion(
			`{"event_type":"AuthenticationFailure","risk_level":"medium","confidence":72,` +
				`"summary":"Repeated failed logons","mitre_techniques":["T1110"],` +
				`"recommended_actions":["Lock account"]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "llama3.1:8b", "secret", time.Second)
	v, err := c.Analyze(context.Background(),
		models.LogEvent{Host: "DC-01", Channel: "Security", EventID: 4625, Timestamp: time.Now()},
		[]models.LogEvent{{Host: "DC-01", Channel: "Security", EventID: 4625, Timestamp: time.Now(), Message: "prior failure"}},
	)
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeAuthFailure, v.EventType)
	assert.Equal(t, models.RiskMedium, v.RiskLevel)
	assert.Equal(t, 72, v.Confidence)
	assert.Contains(t, v.MitreTechniques, "T1110")
}

func TestAnalyze_StripsCodeFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completion(
			"Here is my analysis:\n```json\n" +
				`{"event_type":"Other","risk_level":"low","confidence":10,"summary":"benign"}` +
				"\n```\n"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "m", "", time.Second)
	v, err := c.Analyze(context.Background(), models.LogEvent{Timestamp: time.Now()}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeOther, v.EventType)
}

func TestAnalyze_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completion("I cannot answer in JSON today."))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "m", "", time.Second)
	_, err := c.Analyze(context.Background(), models.LogEvent{Timestamp: time.Now()}, nil)
	require.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestAnalyze_InvalidEnumRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completion(
			`{"event_type":"SomethingNew","risk_level":"low","confidence":10,"summary":"x"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "m", "", time.Second)
	_, err := c.Analyze(context.Background(), models.LogEvent{Timestamp: time.Now()}, nil)
	require.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestAnalyze_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(completion(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "m", "", 50*time.Millisecond)
	_, err := c.Analyze(context.Background(), models.LogEvent{Timestamp: time.Now()}, nil)
	require.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestAnalyze_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "m", "", time.Second)
	_, err := c.Analyze(context.Background(), models.LogEvent{Timestamp: time.Now()}, nil)
	require.ErrorIs(t, err, ErrLLMUnavailable)
}
