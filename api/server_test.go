////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp/fasthttputil"

	"gitlab.com/elixxir/staffcomms/badge"
	"gitlab.com/elixxir/staffcomms/directory"
	"gitlab.com/elixxir/staffcomms/dm"
	"gitlab.com/elixxir/staffcomms/dm/storage"
)

const testRoster = `{
  "users": [
    {"id": "alice", "name": "Alice", "email": "alice@school.org"},
    {"id": "bob", "name": "Bob", "email": "bob@school.org"},
    {"id": "carol", "name": "Carol", "email": "carol@school.org"}
  ],
  "pushTokens": []
}`

var (
	secret = []byte("test-secret")
	alice  = dm.Participant{ID: "alice", Name: "Alice", Email: "alice@school.org"}
	bob    = dm.Participant{ID: "bob", Name: "Bob", Email: "bob@school.org"}
	carol  = dm.Participant{ID: "carol", Name: "Carol", Email: "carol@school.org"}
)

type testServer struct {
	*Server
	client dm.Client
	store  *storage.Store
	alerts *badge.Static
}

func newTestServer(t *testing.T) *testServer {
	roster, err := directory.NewRoster(testRoster)
	require.NoError(t, err)
	store := storage.NewStore()
	client := dm.NewClient(store, roster, nil, nil, nil, dm.GetDefaultParams())
	alerts := badge.NewStatic(0)
	t.Cleanup(func() {
		_ = client.Close()
		_ = store.Close()
	})
	return &testServer{
		Server: NewServer(client, alerts, secret),
		client: client,
		store:  store,
		alerts: alerts,
	}
}

func token(t *testing.T, p dm.Participant) string {
	tok, err := IssueToken(secret, p, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string,
	body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) send(t *testing.T, from, to dm.Participant,
	content string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/messages", token(t, from),
		SendRequest{RecipientID: to.ID, RecipientName: to.Name,
			RecipientEmail: to.Email, Content: content})
	require.Equal(t, http.StatusCreated, code, body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)
	req := SendRequest{RecipientID: "bob", Content: "hi"}

	code, _ := s.do(t, http.MethodPost, "/api/messages", "", req)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/messages", "garbage", req)
	require.Equal(t, http.StatusUnauthorized, code)

	other, err := IssueToken([]byte("other-secret"), alice, time.Hour)
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodPost, "/api/messages", other, req)
	require.Equal(t, http.StatusUnauthorized, code)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodPost, "/api/messages", expired, req)
	require.Equal(t, http.StatusUnauthorized, code)

	noSubject, err := IssueToken(secret, dm.Participant{Name: "x"}, 0)
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodPost, "/api/messages", noSubject, req)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestParseToken(t *testing.T) {
	tok := token(t, alice)
	p, err := ParseToken(secret, tok)
	require.NoError(t, err)
	require.Equal(t, alice, p)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(secret, none)
	require.Error(t, err)
}

func TestSendMessage(t *testing.T) {
	s := newTestServer(t)
	id := s.send(t, alice, bob, `<script>alert(1)</script>Lunch & <b>recess</b>`)

	msg, err := s.store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Lunch & recess", msg.Content)
	require.Equal(t, "alice", msg.SenderID)
	require.Equal(t, "bob", msg.RecipientID)
	require.Equal(t, dm.ConversationID("alice", "bob"), msg.ConversationID)
}

func TestSendMessage_Rejected(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, alice)

	code, body := s.do(t, http.MethodPost, "/api/messages", tok,
		SendRequest{RecipientID: "alice", Content: "me"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["error"], "yourself")

	code, _ = s.do(t, http.MethodPost, "/api/messages", tok,
		SendRequest{RecipientID: "bob", Content: "<b> </b>"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/messages", tok,
		SendRequest{Content: "hello"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestMarkRead(t *testing.T) {
	s := newTestServer(t)
	s.send(t, alice, bob, "one")
	s.send(t, alice, bob, "two")

	convID := dm.ConversationID("alice", "bob")
	c, err := s.store.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	require.Equal(t, 2, c.UnreadCount["bob"])

	code, _ := s.do(t, http.MethodPost, "/api/conversations/alice/read",
		token(t, bob), nil)
	require.Equal(t, http.StatusNoContent, code)

	c, err = s.store.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	require.Equal(t, 0, c.UnreadCount["bob"])
}

func TestDeleteConversation(t *testing.T) {
	s := newTestServer(t)
	s.send(t, alice, bob, "hello")
	convID := dm.ConversationID("alice", "bob")

	code, _ := s.do(t, http.MethodDelete, "/api/conversations/"+convID,
		token(t, carol), nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodDelete, "/api/conversations/missing",
		token(t, alice), nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodDelete, "/api/conversations/"+convID,
		token(t, alice), nil)
	require.Equal(t, http.StatusNoContent, code)

	c, err := s.store.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	require.True(t, c.DeletedFor.Has("alice"))
	require.False(t, c.DeletedFor.Has("bob"))
}

func TestDeleteMessage(t *testing.T) {
	s := newTestServer(t)
	id := s.send(t, alice, bob, "oops")

	code, _ := s.do(t, http.MethodDelete, "/api/messages/missing",
		token(t, alice), nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodDelete, "/api/messages/"+id,
		token(t, carol), nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodDelete, "/api/messages/"+id,
		token(t, alice), nil)
	require.Equal(t, http.StatusNoContent, code)

	msg, err := s.store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	require.True(t, msg.DeletedFor.Has("alice"))
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{dm.ErrSelfMessage, http.StatusBadRequest},
		{errors.WithMessage(dm.ErrEmptyContent, "send"), http.StatusBadRequest},
		{errors.WithMessagef(dm.ErrNotParticipant, "conv %s", "x"), http.StatusForbidden},
		{dm.ErrConversationNotFound, http.StatusNotFound},
		{errors.WithMessage(dm.ErrMessageNotFound, "m"), http.StatusNotFound},
		{dm.ErrClientClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		require.Equal(t, c.code, errorStatus(c.err), c.err.Error())
	}
}

func TestApplySession(t *testing.T) {
	session := dm.NewSession("alice")
	peer, background := "bob", false
	applySession(session, SessionFrame{Viewing: &peer})
	require.Equal(t, "bob", session.Context().ActivePeerID)
	require.True(t, session.Context().Foreground)

	applySession(session, SessionFrame{Foreground: &background})
	require.Equal(t, "bob", session.Context().ActivePeerID)
	require.False(t, session.Context().Foreground)

	empty := ""
	applySession(session, SessionFrame{Viewing: &empty})
	require.Empty(t, session.Context().ActivePeerID)
}

func TestOutbox(t *testing.T) {
	latest := newOutbox(true)
	latest.push(1)
	latest.push(2)
	require.Equal(t, []interface{}{2}, latest.take())
	require.Empty(t, latest.take())

	queue := newOutbox(false)
	queue.push(1)
	queue.push(2)
	require.Equal(t, []interface{}{1, 2}, queue.take())

	queue.close()
	queue.push(3)
	require.Empty(t, queue.take())
}

// dial opens a socket to the server over an in-memory listener.
func (s *testServer) dial(t *testing.T, path string,
	p dm.Participant) *websocket.Conn {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() { _ = s.Shutdown() })

	dialer := websocket.Dialer{
		NetDial: func(string, string) (net.Conn, error) { return ln.Dial() },
	}
	conn, _, err := dialer.Dial("ws://staffcomms"+path+"?token="+token(t, p), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

// readUntil reads frames into v until done reports true.
func readUntil(t *testing.T, conn *websocket.Conn, v interface{},
	done func() bool) {
	t.Helper()
	for i := 0; i < 50; i++ {
		readFrame(t, conn, v)
		if done() {
			return
		}
	}
	t.Fatal("expected frame never arrived")
}

func TestStreamConversations(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "/ws/conversations", bob)

	var f ConversationsFrame
	readFrame(t, conn, &f)
	require.Equal(t, FrameConversations, f.Type)
	require.Empty(t, f.Conversations)

	s.send(t, alice, bob, "hi bob")
	readUntil(t, conn, &f, func() bool {
		return len(f.Conversations) == 1 && f.Conversations[0].UnreadCount == 1
	})
	require.Equal(t, "alice", f.Conversations[0].Recipient.ID)
	require.Equal(t, "hi bob", f.Conversations[0].LastMessage)
}

func TestStreamMessages(t *testing.T) {
	s := newTestServer(t)
	s.send(t, alice, bob, "first")
	conn := s.dial(t, "/ws/messages/alice", bob)

	var f MessagesFrame
	readFrame(t, conn, &f)
	require.Equal(t, FrameMessages, f.Type)
	require.Len(t, f.Messages, 1)
	require.Equal(t, "first", f.Messages[0].Content)

	s.send(t, bob, alice, "second")
	readUntil(t, conn, &f, func() bool {
		return len(f.Messages) == 2
	})
	require.Equal(t, "second", f.Messages[1].Content)
}

func TestStreamBadge(t *testing.T) {
	s := newTestServer(t)
	s.alerts.Set(2)
	conn := s.dial(t, "/ws/badge", bob)

	var f BadgeFrame
	readUntil(t, conn, &f, func() bool {
		return f.Badge == 2
	})
	require.Equal(t, FrameBadge, f.Type)

	s.send(t, alice, bob, "one")
	readUntil(t, conn, &f, func() bool {
		return f.Badge == 3
	})
}

func TestStreamNotifications(t *testing.T) {
	s := newTestServer(t)
	history := s.send(t, carol, bob, "history")
	conn := s.dial(t, "/ws/notifications", bob)

	// The listener marks history delivered once it has primed.
	require.Eventually(t, func() bool {
		m, err := s.store.GetMessage(context.Background(), history)
		return err == nil && m.Status == dm.Delivered
	}, 5*time.Second, 5*time.Millisecond)

	id := s.send(t, alice, bob, "are you free?")
	var f NotificationFrame
	readFrame(t, conn, &f)
	require.Equal(t, FrameNotification, f.Type)
	require.Equal(t, id, f.Notification.MessageID)
	require.Equal(t, "alice", f.Notification.SenderID)
	require.Equal(t, "Alice", f.Notification.Title)
	require.Equal(t, "are you free?", f.Notification.Body)
}

func TestStream_RequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/ws/conversations", token(t, bob), nil)
	require.Equal(t, http.StatusUpgradeRequired, code)
}
