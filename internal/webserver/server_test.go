package webserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/db/dbtest"
	"github.com/helpinghand/helpinghand/internal/logging"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/moderation"
	"github.com/helpinghand/helpinghand/internal/profile"
	"github.com/helpinghand/helpinghand/internal/ratelimit"
)

type harness struct {
	t       *testing.T
	db      *gorm.DB
	issuer  *auth.Issuer
	manager *manager.RequestManager
	handler http.Handler

	seeker, vol, admin db.User
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	d := dbtest.New(t)
	issuer := auth.NewIssuer("test-secret", time.Hour, "helpinghand")
	mgr := manager.New(d, manager.WithLogger(logging.Discard()))
	deps := Deps{
		DB:         d,
		Manager:    mgr,
		Accounts:   auth.NewService(d, issuer),
		Issuer:     issuer,
		Moderation: moderation.New(d, logging.Discard()),
		Profiles:   profile.New(d),
		Logger:     logging.Discard(),
		Limiter:    ratelimit.NewInMemory(time.Minute),
		PerMinute:  1000,
	}
	for _, m := range mutate {
		m(&deps)
	}
	return &harness{
		t:       t,
		db:      d,
		issuer:  issuer,
		manager: mgr,
		handler: New(deps).Handler(),
		seeker:  dbtest.User(t, d, "sam", db.RoleHelpSeeker),
		vol:     dbtest.User(t, d, "val", db.RoleVolunteer),
		admin:   dbtest.User(t, d, "ada", db.RoleAdmin),
	}
}

func (h *harness) token(u db.User) string {
	h.t.Helper()
	tok, err := h.issuer.Issue(auth.Principal{ID: u.ID, Role: u.Role, Name: u.Name})
	require.NoError(h.t, err)
	return tok
}

func (h *harness) call(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func msgOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]any](t, w)["msg"].(string)
}

func (h *harness) create(title string) *manager.RequestView {
	h.t.Helper()
	w := h.call(http.MethodPost, "/api/requests", h.token(h.seeker), map[string]string{
		"title": title, "description": "need a hand", "category": "Groceries",
	})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decodeBody[requestResponse](h.t, w).Request
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.call(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, healthMagic, decodeBody[map[string]string](t, w)["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestAuthenticationRequired(t *testing.T) {
	h := newHarness(t)

	w := h.call(http.MethodGet, "/api/requests/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No token, authorization denied", msgOf(t, w))

	w = h.call(http.MethodGet, "/api/requests/pending", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token is not valid", msgOf(t, w))
}

func TestRegisterLoginAndMe(t *testing.T) {
	h := newHarness(t)

	w := h.call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Vera", "email": "vera@example.org", "password": "secret1", "role": "volunteer",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reg := decodeBody[sessionResponse](t, w)
	assert.Equal(t, "User registered successfully!", reg.Msg)
	assert.Equal(t, db.RoleVolunteer, reg.User.Role)
	require.NotEmpty(t, reg.Token)

	w = h.call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Vera", "email": "vera@example.org", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", msgOf(t, w))

	w = h.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "vera@example.org", "password": "wrong!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid Credentials", msgOf(t, w))

	w = h.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "VERA@example.org", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decodeBody[sessionResponse](t, w)
	assert.Equal(t, "Logged in successfully!", login.Msg)

	w = h.call(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[sessionUser](t, w)
	assert.Equal(t, "Vera", me.Name)
	assert.Equal(t, reg.User.ID, me.ID)
}

func TestLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	req := h.create("Groceries for Tuesday")
	assert.Equal(t, db.StatusPending, req.Status)
	require.NotNil(t, req.Requester)
	assert.Equal(t, "sam", req.Requester.Name)

	w := h.call(http.MethodGet, "/api/requests/pending", h.token(h.vol), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]manager.RequestView](t, w), 1)

	w = h.call(http.MethodPut, "/api/requests/"+req.ID+"/accept", h.token(h.vol), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decodeBody[requestResponse](t, w)
	assert.Equal(t, "Request accepted successfully!", accepted.Msg)
	assert.Equal(t, db.StatusAccepted, accepted.Request.Status)
	require.NotNil(t, accepted.Request.AssignedVolunteer)
	assert.Equal(t, h.vol.ID, accepted.Request.AssignedVolunteer.ID)

	w = h.call(http.MethodGet, "/api/requests/assigned-to-me", h.token(h.vol), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]manager.RequestView](t, w), 1)

	w = h.call(http.MethodPut, "/api/requests/"+req.ID+"/complete", h.token(h.vol), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Request marked as completed!", decodeBody[requestResponse](t, w).Msg)

	w = h.call(http.MethodPost, "/api/helpseeker/reviews", h.token(h.seeker), map[string]any{
		"helpRequestId": req.ID, "rating": 5, "comment": "thanks",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Review submitted successfully!", msgOf(t, w))

	w = h.call(http.MethodGet, "/api/users/"+h.vol.ID+"/reviews", h.token(h.seeker), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]db.Review](t, w), 1)

	w = h.call(http.MethodGet, "/api/requests/"+req.ID, h.token(h.seeker), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[manager.RequestView](t, w).HasReview)
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t)
	other := dbtest.User(t, h.db, "olga", db.RoleHelpSeeker)
	req := h.create("Ride to the clinic")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		msg    string
	}{
		{"volunteer cannot create", http.MethodPost, "/api/requests", h.token(h.vol), http.StatusForbidden, "Only help seekers can create requests."},
		{"seeker cannot accept", http.MethodPut, "/api/requests/" + req.ID + "/accept", h.token(h.seeker), http.StatusForbidden, "Only volunteers can accept requests."},
		{"unknown id", http.MethodPut, "/api/requests/not-a-uuid/accept", h.token(h.vol), http.StatusNotFound, "Request not found"},
		{"non-owner cancel", http.MethodPut, "/api/requests/" + req.ID + "/cancel", h.token(other), http.StatusUnauthorized, "Not authorized to cancel this request."},
		{"complete while pending", http.MethodPut, "/api/requests/" + req.ID + "/complete", h.token(h.vol), http.StatusBadRequest, "Request is pending; it must be accepted to be marked as completed."},
		{"me is seeker only", http.MethodGet, "/api/requests/me", h.token(h.vol), http.StatusForbidden, "Access denied. Not a help seeker."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any
			if tt.method == http.MethodPost {
				body = map[string]string{"title": "t", "description": "d"}
			}
			w := h.call(tt.method, tt.path, tt.token, body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.msg, msgOf(t, w))
		})
	}

	h.call(http.MethodPut, "/api/requests/"+req.ID+"/accept", h.token(h.vol), nil)
	w := h.call(http.MethodPut, "/api/requests/"+req.ID+"/accept", h.token(h.vol), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request is already accepted.", msgOf(t, w))
}

func TestInvalidBody(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader("{not json"))
	req.Header.Set("x-auth-token", h.token(h.seeker))
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgInvalidBody, msgOf(t, w))
}

func TestUnassignAndDelete(t *testing.T) {
	h := newHarness(t)
	req := h.create("Walk the dog")
	h.call(http.MethodPut, "/api/requests/"+req.ID+"/accept", h.token(h.vol), nil)

	w := h.call(http.MethodPut, "/api/requests/"+req.ID+"/unassign", h.token(h.vol), nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeBody[requestResponse](t, w)
	assert.Equal(t, "Successfully unassigned from request. It is now pending again.", out.Msg)
	assert.Equal(t, db.StatusPending, out.Request.Status)
	assert.Nil(t, out.Request.AssignedVolunteerID)

	w = h.call(http.MethodDelete, "/api/requests/"+req.ID, h.token(h.seeker), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Request removed", msgOf(t, w))

	w = h.call(http.MethodGet, "/api/requests/"+req.ID, h.token(h.seeker), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	req := h.create("Fix the fence")

	w := h.call(http.MethodGet, "/api/admin/users", h.token(h.seeker), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, msgNotAdmin, msgOf(t, w))

	w = h.call(http.MethodGet, "/api/admin/users?role=volunteer", h.token(h.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decodeBody[[]db.User](t, w)
	require.Len(t, users, 1)
	assert.Equal(t, h.vol.ID, users[0].ID)

	w = h.call(http.MethodPut, "/api/admin/requests/"+req.ID+"/status", h.token(h.admin), map[string]string{
		"status": "accepted", "volunteer_id": h.vol.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Request status updated to accepted.", decodeBody[requestResponse](t, w).Msg)

	w = h.call(http.MethodPut, "/api/admin/requests/"+req.ID+"/status", h.token(h.admin), map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status provided.", msgOf(t, w))

	w = h.call(http.MethodGet, "/api/admin/stats/request-statuses", h.token(h.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decodeBody[[]moderation.StatusCount](t, w)
	require.Len(t, counts, 1)
	assert.Equal(t, db.StatusAccepted, counts[0].Status)

	w = h.call(http.MethodPut, "/api/admin/users/"+h.seeker.ID+"/role", h.token(h.admin), map[string]string{"role": "volunteer"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User role updated to volunteer.", msgOf(t, w))

	w = h.call(http.MethodDelete, "/api/admin/users/"+h.admin.ID, h.token(h.admin), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.call(http.MethodDelete, "/api/admin/requests/"+req.ID, h.token(h.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Help request removed successfully!", msgOf(t, w))

	w = h.call(http.MethodDelete, "/api/admin/requests/"+req.ID, h.token(h.admin), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Help request not found", msgOf(t, w))
	w = h.call(http.MethodDelete, "/api/requests/"+req.ID, h.token(h.seeker), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Request not found", msgOf(t, w))
}

func TestComplaintsOverHTTP(t *testing.T) {
	h := newHarness(t)

	w := h.call(http.MethodPost, "/api/complaints", h.token(h.seeker), map[string]string{
		"againstVolunteer": h.vol.ID, "title": "No show", "description": "never arrived",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decodeBody[struct {
		Complaint db.Complaint `json:"complaint"`
	}](t, w).Complaint

	w = h.call(http.MethodPut, "/api/admin/complaints/"+c.ID+"/status", h.token(h.admin), map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Complaint status updated to resolved.", msgOf(t, w))

	w = h.call(http.MethodGet, "/api/admin/complaints", h.token(h.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]moderation.ComplaintView](t, w), 1)
}

func TestProfilesOverHTTP(t *testing.T) {
	h := newHarness(t)

	w := h.call(http.MethodGet, "/api/volunteer/profile/me", h.token(h.vol), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	in := map[string]any{"bio": "retired nurse", "skills": []string{"first aid"}, "availability": []string{"weekends"}}
	w = h.call(http.MethodPost, "/api/volunteer/profile", h.token(h.vol), in)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Volunteer profile created!", msgOf(t, w))

	w = h.call(http.MethodPost, "/api/volunteer/profile", h.token(h.vol), in)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Volunteer profile updated!", msgOf(t, w))

	w = h.call(http.MethodGet, "/api/users/"+h.vol.ID+"/profile", h.token(h.seeker), nil)
	require.Equal(t, http.StatusOK, w.Code)
	pub := decodeBody[profile.Public](t, w)
	require.NotNil(t, pub.Profile)
	assert.Equal(t, "retired nurse", pub.Profile.Bio)

	w = h.call(http.MethodGet, "/api/users/volunteers", h.token(h.seeker), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]db.User](t, w), 1)
}

func TestRateLimited(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.PerMinute = 2 })
	tok := h.token(h.vol)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, h.call(http.MethodGet, "/api/requests/pending", tok, nil).Code)
	}
	w := h.call(http.MethodGet, "/api/requests/pending", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestSSEStreamsEvents(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?token="+h.token(h.vol), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, ": keepalive", lines.Text())

	created := h.create("Paint the porch")

	var event, data string
	for lines.Scan() {
		line := lines.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	assert.Equal(t, "created", event)
	var ev manager.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, created.ID, ev.RequestID)
	assert.Equal(t, h.seeker.ID, ev.Actor)
}

func TestWebsocketStreamsEvents(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events/ws", nil)
	require.Error(t, err, "websocket requires a token")

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events/ws?token="+h.token(h.vol), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return h.manager.Broker().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	created := h.create("Carry boxes")

	var ev manager.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, manager.EventCreated, ev.Type)
	assert.Equal(t, created.ID, ev.RequestID)
	assert.Equal(t, db.StatusPending, ev.Status)
}

func TestEventsOnlyReachTheirAudience(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outsider := dbtest.User(t, h.db, "oli", db.RoleHelpSeeker)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events/ws?token="+h.token(outsider), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return h.manager.Broker().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	theirs := h.create("Walk the dog")
	w := h.call(http.MethodPut, "/api/requests/"+theirs.ID+"/accept", h.token(h.vol), nil)
	require.Equal(t, http.StatusOK, w.Code)

	own, err := h.manager.Create(ctx, auth.Principal{ID: outsider.ID, Role: outsider.Role, Name: outsider.Name},
		manager.CreateInput{Title: "Fix the tap", Description: "dripping", Category: db.CategoryOther})
	require.NoError(t, err)

	var ev manager.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, own.ID, ev.RequestID, "events for other seekers' requests are withheld")
	assert.Equal(t, outsider.ID, ev.Actor)
}

func TestClientAgainstServer(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)
	ctx := context.Background()

	seeker := NewClient(srv.URL+"/", h.token(h.seeker))
	require.NoError(t, seeker.Ping(ctx))

	created, err := seeker.Create(ctx, manager.CreateInput{Title: "Pick up meds", Description: "pharmacy on 5th"})
	require.NoError(t, err)
	assert.Equal(t, db.CategoryOther, created.Category)

	vol := NewClient(srv.URL, h.token(h.vol))
	pending, err := vol.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	msg, accepted, err := vol.Transition(ctx, created.ID, "accept")
	require.NoError(t, err)
	assert.Equal(t, "Request accepted successfully!", msg)
	assert.Equal(t, db.StatusAccepted, accepted.Status)

	got, err := seeker.WaitForStatus(ctx, created.ID, db.StatusAccepted, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, h.vol.ID, *got.AssignedVolunteerID)

	_, _, err = vol.Transition(ctx, created.ID, "accept")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Request is already accepted.", apiErr.Msg)

	_, _, err = vol.Transition(ctx, created.ID, "explode")
	assert.Error(t, err)

	mine, err := vol.Mine(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
