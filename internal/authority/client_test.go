package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalstream/emissor/internal/document"
)

// fakeAuthority scripts the authority's HTTP surface for client tests.
type fakeAuthority struct {
	t *testing.T

	tokenCalls  atomic.Int64
	submitCalls atomic.Int64

	submitStatus int
	submitBody   string
	statusBody   string
	statusCode   int
	cancelCode   int
	artifactBody string
}

func (f *fakeAuthority) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		require.NoError(f.t, r.ParseForm())
		if r.PostForm.Get("grant_type") != "client_credentials" ||
			r.PostForm.Get("client_secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1", "token_type": "bearer", "expires_in": 3600,
		})
	})

	requireBearer := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("POST /v1/nfce", func(w http.ResponseWriter, r *http.Request) {
		f.submitCalls.Add(1)
		if !requireBearer(w, r) {
			return
		}
		w.WriteHeader(f.submitStatus)
		fmt.Fprint(w, f.submitBody)
	})

	mux.HandleFunc("GET /v1/nfce/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		w.WriteHeader(f.statusCode)
		fmt.Fprint(w, f.statusBody)
	})

	mux.HandleFunc("POST /v1/nfce/{id}/cancelamento", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		var body map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(f.t, body["justificativa"])
		w.WriteHeader(f.cancelCode)
	})

	mux.HandleFunc("GET /v1/nfce/{id}/pdf", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		fmt.Fprint(w, f.artifactBody)
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeAuthority) (*Client, *httptest.Server) {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c := New(document.EnvHomologation, Credentials{
		BaseURL:      srv.URL,
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}, WithTimeout(2*time.Second))
	return c, srv
}

func TestAuthenticate_CachesToken(t *testing.T) {
	f := &fakeAuthority{statusCode: http.StatusOK, statusBody: `{"status":"processando"}`}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	tok, err := c.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Follow-up calls reuse the cached token.
	_, err = c.QueryStatus(ctx, "auth-1", document.TypePointOfSale)
	require.NoError(t, err)
	_, err = c.QueryStatus(ctx, "auth-1", document.TypePointOfSale)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.tokenCalls.Load(), "token must be exchanged once and cached")
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	f := &fakeAuthority{}
	c, _ := newTestClient(t, f)
	c.creds.ClientSecret = "wrong"

	_, err := c.Authenticate(context.Background())
	assert.True(t, document.IsAuth(err))
}

func TestSubmit_Acknowledged(t *testing.T) {
	f := &fakeAuthority{
		submitStatus: http.StatusCreated,
		submitBody:   `{"id":"auth-123","status":"processando"}`,
	}
	c, _ := newTestClient(t, f)

	ack, err := c.Submit(context.Background(), []byte(`{"referencia":"ord-1"}`), document.TypePointOfSale)
	require.NoError(t, err)
	assert.Equal(t, "auth-123", ack.AuthorityID)
	assert.Equal(t, "processando", ack.Status)
	assert.Equal(t, int64(1), f.submitCalls.Load(), "submit must never be retried")
}

func TestSubmit_SynchronousRejection_ErrorList(t *testing.T) {
	f := &fakeAuthority{
		submitStatus: http.StatusUnprocessableEntity,
		submitBody:   `{"erros":[{"codigo":"60","descricao":"campo obrigatório"},{"codigo":"61","descricao":"valor inválido"}]}`,
	}
	c, _ := newTestClient(t, f)

	_, err := c.Submit(context.Background(), []byte(`{}`), document.TypePointOfSale)
	se, ok := document.IsSubmission(err)
	require.True(t, ok)
	require.Len(t, se.Messages, 2)
	assert.Equal(t, "60", se.Messages[0].Code)
	assert.Contains(t, se.Detail(), "campo obrigatório")
	assert.Equal(t, int64(1), f.submitCalls.Load())
}

func TestSubmit_SynchronousRejection_FlatShape(t *testing.T) {
	f := &fakeAuthority{
		submitStatus: http.StatusBadRequest,
		submitBody:   `{"codigo":"99","descricao":"schema desconhecido"}`,
	}
	c, _ := newTestClient(t, f)

	_, err := c.Submit(context.Background(), []byte(`{}`), document.TypePointOfSale)
	se, ok := document.IsSubmission(err)
	require.True(t, ok)
	require.Len(t, se.Messages, 1)
	assert.Equal(t, "99", se.Messages[0].Code)
}

func TestQueryStatus_Resolved(t *testing.T) {
	f := &fakeAuthority{
		statusCode: http.StatusOK,
		statusBody: `{"status":"autorizado","numero":"42","serie":"1","chave":"chave-42","pdf_url":"https://authority.example/42.pdf"}`,
	}
	c, _ := newTestClient(t, f)

	st, err := c.QueryStatus(context.Background(), "auth-123", document.TypePointOfSale)
	require.NoError(t, err)
	assert.Equal(t, "autorizado", st.Status)
	assert.Equal(t, "42", st.DocumentNumber)
	assert.Equal(t, "chave-42", st.AccessKey)
}

func TestQueryStatus_NotFound(t *testing.T) {
	f := &fakeAuthority{statusCode: http.StatusNotFound}
	c, _ := newTestClient(t, f)

	_, err := c.QueryStatus(context.Background(), "auth-missing", document.TypePointOfSale)
	assert.True(t, document.IsNotFound(err))
}

func TestCancel(t *testing.T) {
	f := &fakeAuthority{cancelCode: http.StatusOK}
	c, _ := newTestClient(t, f)

	err := c.Cancel(context.Background(), "auth-123", document.TypePointOfSale,
		"emissão duplicada por falha operacional")
	assert.NoError(t, err)
}

func TestCancel_AuthorityRefuses(t *testing.T) {
	f := &fakeAuthority{cancelCode: http.StatusUnprocessableEntity}
	c, _ := newTestClient(t, f)

	err := c.Cancel(context.Background(), "auth-123", document.TypePointOfSale,
		"emissão duplicada por falha operacional")
	_, ok := document.IsSubmission(err)
	assert.True(t, ok, "authority refusal carries structured detail")
}

func TestFetchArtifact(t *testing.T) {
	f := &fakeAuthority{artifactBody: "%PDF-1.7 fake"}
	c, _ := newTestClient(t, f)

	rc, err := c.FetchArtifact(context.Background(), "auth-123", document.TypePointOfSale, ArtifactRender)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(data))
}

func TestFetchArtifact_UnknownKind(t *testing.T) {
	f := &fakeAuthority{}
	c, _ := newTestClient(t, f)

	_, err := c.FetchArtifact(context.Background(), "auth-123", document.TypePointOfSale, ArtifactKind("zip"))
	assert.Error(t, err)
}

func TestTransientNetworkError(t *testing.T) {
	c := New(document.EnvHomologation, Credentials{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
	}, WithTimeout(200*time.Millisecond))

	_, err := c.Authenticate(context.Background())
	assert.True(t, document.IsTransient(err))
}
