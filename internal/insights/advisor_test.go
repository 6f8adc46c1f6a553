package insights

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/FairForge/dropsense/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var allTypes = []Type{
	TypeHighRiskBeginner, TypeLowSecurity, TypeLowChainDiversity,
	TypeLowCompletion, TypeBurstActivity, TypeDecliningChain,
}

func TestTemplateAdvisor_CoversEveryRule(t *testing.T) {
	f := Finding{Data: map[string]any{
		"risk_score": 72.5, "chains": []string{"ethereum"}, "completion_rate": 30.0, "chain": "base",
	}}
	seen := map[string]bool{}
	for _, typ := range allTypes {
		f.Type = typ
		adv, err := TemplateAdvisor{}.Advise(context.Background(), f)
		require.NoError(t, err)
		assert.NotEmpty(t, adv.Title)
		assert.NotEmpty(t, adv.Description)
		assert.NotEmpty(t, adv.Recommendation)
		assert.False(t, seen[adv.Title], "titles are distinct per rule")
		seen[adv.Title] = true
	}
}

func TestTemplateAdvisor_Deterministic(t *testing.T) {
	f := Finding{Type: TypeLowChainDiversity, Data: map[string]any{"chains": []string{"ethereum", "base"}}}
	a, _ := TemplateAdvisor{}.Advise(context.Background(), f)
	b, _ := TemplateAdvisor{}.Advise(context.Background(), f)
	assert.Equal(t, a, b)
	assert.Contains(t, a.Description, "ethereum and base")
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
	})
}

const goodAdvice = `{"title":"Diversify","description":"Only one chain so far.","recommendation":"Try Base."}`

func TestRemoteAdvisor_Success(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, goodAdvice)
	}))
	defer srv.Close()

	a := NewRemoteAdvisor(config.AdvisoryConfig{Endpoint: srv.URL + "/", Model: "m1", APIKey: "secret"})
	adv, err := a.Advise(context.Background(), Finding{Type: TypeLowChainDiversity, Data: map[string]any{"chain_count": 1}})

	require.NoError(t, err)
	assert.Equal(t, "Diversify", adv.Title)
	assert.Equal(t, "m1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "low_chain_diversity")
}

func TestRemoteAdvisor_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"minted","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer minted", r.Header.Get("Authorization"))
		chatReply(w, goodAdvice)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewRemoteAdvisor(config.AdvisoryConfig{
		Endpoint: srv.URL, TokenURL: srv.URL + "/token", ClientID: "id", ClientSecret: "s",
	})
	_, err := a.Advise(context.Background(), Finding{Type: TypeLowSecurity})
	assert.NoError(t, err)
}

func TestRemoteAdvisor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
		{"content not json", func(w http.ResponseWriter, r *http.Request) {
			chatReply(w, "Sure! Here is some advice.")
		}},
		{"content fails schema", func(w http.ResponseWriter, r *http.Request) {
			chatReply(w, `{"title":""}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewRemoteAdvisor(config.AdvisoryConfig{Endpoint: srv.URL}).Advise(context.Background(), Finding{Type: TypeLowSecurity})
			assert.ErrorIs(t, err, ErrAdvisoryUnavailable)
		})
	}
}

type stubAdvisor struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (Advice, error)
}

func (s *stubAdvisor) Advise(ctx context.Context, _ Finding) (Advice, error) {
	s.calls.Add(1)
	return s.fn(ctx)
}

func resilient(remote Advisor, timeout time.Duration) *ResilientAdvisor {
	p := config.DefaultPolicy()
	p.AdvisoryTimeout = timeout
	return NewResilientAdvisor(remote, config.NewLive(p), zap.NewNop(), metrics.NewCollector())
}

func TestResilientAdvisor_UsesRemoteWhenHealthy(t *testing.T) {
	stub := &stubAdvisor{fn: func(context.Context) (Advice, error) {
		return Advice{Title: "remote"}, nil
	}}
	adv, source := resilient(stub, time.Second).Advise(context.Background(), Finding{Type: TypeLowSecurity})
	assert.Equal(t, "remote", adv.Title)
	assert.Equal(t, SourceAdvisory, source)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestResilientAdvisor_RetriesOnceThenFallsBack(t *testing.T) {
	stub := &stubAdvisor{fn: func(context.Context) (Advice, error) {
		return Advice{}, errors.New("connection refused")
	}}
	adv, source := resilient(stub, time.Second).Advise(context.Background(), Finding{Type: TypeLowSecurity})

	assert.Equal(t, SourceTemplate, source)
	assert.Equal(t, "Tighten your wallet security", adv.Title)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestResilientAdvisor_CapsRetriesFromPolicy(t *testing.T) {
	stub := &stubAdvisor{fn: func(context.Context) (Advice, error) {
		return Advice{}, errors.New("connection refused")
	}}
	p := config.DefaultPolicy()
	p.AdvisoryRetries = 4
	r := NewResilientAdvisor(stub, config.NewLive(p), zap.NewNop(), metrics.NewCollector())

	_, source := r.Advise(context.Background(), Finding{Type: TypeLowSecurity})
	assert.Equal(t, SourceTemplate, source)
	assert.Equal(t, int32(1+config.MaxAdvisoryRetries), stub.calls.Load())
}

func TestResilientAdvisor_ZeroTimeoutUsesDefault(t *testing.T) {
	stub := &stubAdvisor{fn: func(context.Context) (Advice, error) {
		return Advice{Title: "remote"}, nil
	}}
	adv, source := resilient(stub, 0).Advise(context.Background(), Finding{Type: TypeLowSecurity})
	assert.Equal(t, SourceAdvisory, source)
	assert.Equal(t, "remote", adv.Title)
}

func TestResilientAdvisor_RecoversOnRetry(t *testing.T) {
	stub := &stubAdvisor{}
	stub.fn = func(context.Context) (Advice, error) {
		if stub.calls.Load() == 1 {
			return Advice{}, ErrAdvisoryUnavailable
		}
		return Advice{Title: "second try"}, nil
	}
	adv, source := resilient(stub, time.Second).Advise(context.Background(), Finding{Type: TypeLowSecurity})
	assert.Equal(t, SourceAdvisory, source)
	assert.Equal(t, "second try", adv.Title)
}

func TestResilientAdvisor_TimeoutIsBounded(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	stub := &stubAdvisor{fn: func(context.Context) (Advice, error) {
		<-block // ignores its context
		return Advice{}, nil
	}}

	start := time.Now()
	_, source := resilient(stub, 20*time.Millisecond).Advise(context.Background(), Finding{Type: TypeBurstActivity})

	assert.Equal(t, SourceTemplate, source)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilientAdvisor_NoRemote(t *testing.T) {
	adv, source := resilient(nil, time.Second).Advise(context.Background(), Finding{Type: TypeBurstActivity})
	assert.Equal(t, SourceTemplate, source)
	assert.NotEmpty(t, adv.Title)
}
