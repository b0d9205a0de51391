package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/types"
)

const testAddr = types.ContractAddress("0200c0ffee")

func TestHTTPClientFetchState(t *testing.T) {
	raw := []byte("serialized-state")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/contracts/"+testAddr.String()+"/state", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"rawState":    base64.StdEncoding.EncodeToString(raw),
			"blockHeight": 42,
			"timestamp":   1700000000,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second, logging.NewNopLogger())
	st, err := client.FetchState(context.Background(), testAddr)
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.Equal(t, testAddr, st.Address)
	assert.Equal(t, raw, st.RawState)
	assert.Equal(t, uint64(42), st.BlockHeight)
	assert.Equal(t, int64(1700000000), st.Timestamp)
}

func TestHTTPClientContractAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second, logging.NewNopLogger())
	st, err := client.FetchState(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestHTTPClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second, logging.NewNopLogger())
	_, err := client.FetchState(context.Background(), testAddr)
	assert.Error(t, err)
}

func TestHTTPClientRejectsBadAddress(t *testing.T) {
	client := NewHTTPClient("http://localhost:0", time.Second, logging.NewNopLogger())
	_, err := client.FetchState(context.Background(), "not-hex!")
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestHTTPClientBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"bad base64", `{"rawState": "@@@"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, 5*time.Second, logging.NewNopLogger())
			_, err := client.FetchState(context.Background(), testAddr)
			assert.Error(t, err)
		})
	}
}

func TestMemoryFetcher(t *testing.T) {
	m := NewMemoryFetcher()
	ctx := context.Background()

	st, err := m.FetchState(ctx, testAddr)
	require.NoError(t, err)
	assert.Nil(t, st)

	m.SetState(&types.ContractState{
		Address:     testAddr,
		RawState:    []byte{1, 2, 3},
		BlockHeight: 9,
	})

	st, err = m.FetchState(ctx, testAddr)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, []byte{1, 2, 3}, st.RawState)

	m.Remove(testAddr)
	st, err = m.FetchState(ctx, testAddr)
	require.NoError(t, err)
	assert.Nil(t, st)
}
