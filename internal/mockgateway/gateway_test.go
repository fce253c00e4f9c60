package mockgateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/socketmode/internal/envelope"
)

func open(t *testing.T, srv *httptest.Server, token string) openResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+OpenPath, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out openResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGateway_OpenRequiresToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AppToken = "xapp-secret"
	g := New(cfg, nil)
	srv := httptest.NewServer(g)
	defer srv.Close()

	bad := open(t, srv, "xapp-wrong")
	assert.False(t, bad.OK)
	assert.Equal(t, "invalid_auth", bad.Error)

	good := open(t, srv, "xapp-secret")
	assert.True(t, good.OK)
	assert.Contains(t, good.URL, LinkPath+"?ticket=")
	assert.Equal(t, 30, good.ExpiresIn)
	assert.Equal(t, 2, g.OpenCalls())
}

func TestGateway_OpenFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenFailures = 1
	g := New(cfg, nil)
	srv := httptest.NewServer(g)
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+OpenPath, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	assert.True(t, open(t, srv, "").OK)
}

func TestGateway_TicketIsSingleUse(t *testing.T) {
	g := New(DefaultConfig(), nil)
	srv := httptest.NewServer(g)
	defer srv.Close()
	defer g.Close()

	u := open(t, srv, "").URL

	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_HelloAckAndEcho(t *testing.T) {
	sessions := make(chan *Session, 1)
	cfg := DefaultConfig()
	cfg.OnSession = func(s *Session) { sessions <- s }
	g := New(cfg, nil)
	srv := httptest.NewServer(g)
	defer srv.Close()
	defer g.Close()

	conn, _, err := websocket.DefaultDialer.Dial(open(t, srv, "").URL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	hello, err := envelope.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, envelope.TypeHello, hello.Type)
	assert.Equal(t, "A0MOCKAPP", hello.ConnectionInfo.AppID)
	assert.Equal(t, 1, hello.NumConnections)

	s := <-sessions
	id, err := s.SendRequest(envelope.TypeEventsAPI, map[string]int{"foo": 1}, false)
	require.NoError(t, err)

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	env, err := envelope.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, id, env.EnvelopeID)

	ack, err := envelope.EncodeAck(id, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, ack))

	got, err := s.WaitAck(time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, got.EnvelopeID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("foo")))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))

	assert.Equal(t, []string{"foo"}, g.Received())
	require.Len(t, g.Acks(), 1)
}

func TestGateway_SessionClose(t *testing.T) {
	sessions := make(chan *Session, 1)
	cfg := DefaultConfig()
	cfg.SendHello = false
	cfg.OnSession = func(s *Session) { sessions <- s }
	g := New(cfg, nil)
	srv := httptest.NewServer(g)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(open(t, srv, "").URL+"&debug_reconnects=true", nil)
	require.NoError(t, err)
	defer conn.Close()

	s := <-sessions
	assert.True(t, s.DebugReconnects)
	require.NoError(t, s.Disconnect(envelope.ReasonWarning))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := envelope.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, envelope.TypeDisconnect, env.Type)
	assert.Equal(t, envelope.ReasonWarning, env.Reason)

	s.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not marked done")
	}
	g.Close()
}
