package devicedriver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"droidmind/internal/memory"
)

func TestHTTPDriver_GetStateParsesBody(t *testing.T) {
	t.Parallel()

	focused := 7
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get-state", r.URL.Path)
		_ = json.NewEncoder(w).Encode(getStateResponse{
			DenoisedText: "hello",
			FocusedID:    &focused,
			Phone:        memory.PhoneState{PackageName: "com.example", ActivityName: ".Main", IsEditable: true},
		})
	}))
	defer srv.Close()

	d := NewHTTPDriver(Config{BaseURL: srv.URL})
	state, err := d.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", state.DenoisedText)
	require.Equal(t, &focused, state.FocusedID)
	require.Equal(t, "com.example", state.Phone.PackageName)
}

func TestHTTPDriver_ExecuteCommandSendsAuthAndTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key123", r.Header.Get("Authorization"))
		var req executeCommandRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "open settings", req.Text)
		_ = json.NewEncoder(w).Encode(RawExecutionResult{Success: true})
	}))
	defer srv.Close()

	d := NewHTTPDriver(Config{BaseURL: srv.URL, APIKey: "key123"})
	res, err := d.ExecuteCommand(context.Background(), "open settings", "", 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestHTTPDriver_NonOKStatusIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := NewHTTPDriver(Config{BaseURL: srv.URL})
	_, err := d.Ping(context.Background())
	require.Error(t, err)
}

func TestFakeDriver_GetStateRepeatsLastEntry(t *testing.T) {
	t.Parallel()

	s1 := memory.UIState{DenoisedText: "first"}
	s2 := memory.UIState{DenoisedText: "second"}
	f := NewFakeDriver(s1, s2)

	got1, err := f.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", got1.DenoisedText)

	got2, err := f.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "second", got2.DenoisedText)

	got3, err := f.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "second", got3.DenoisedText)
}

func TestFakeDriver_ExecuteCommandRecordsCalls(t *testing.T) {
	t.Parallel()

	f := NewFakeDriver()
	f.ExecuteResult = RawExecutionResult{Success: true, Steps: []string{"tap"}}

	res, err := f.ExecuteCommand(context.Background(), "tap button", "because", 2*time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "tap button", res.Command)
	require.Len(t, f.Calls, 1)
	require.Equal(t, "because", f.Calls[0].Reasoning)
}
