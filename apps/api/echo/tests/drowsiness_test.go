package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/drowsiness/core/drowsiness"
	testutil "github.com/trezcool/drowsiness/tests"
)

var authCodeRe = regexp.MustCompile(`^[0-9]{6}$`)

func TestHome(t *testing.T) {
	app := setup(t)
	runHTTPTests(t, app, []httpTest{
		{
			name:     "home",
			method:   http.MethodGet,
			path:     "/",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]string{"app": app.conf.AppName, "build": "test"}),
		},
	})
}

func TestMetrics(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "drowsiness_finish_duration_seconds")
}

func Test_drowsinessApi_start(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, student)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no token",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/start",
			body:     []byte(`{"video_id": 7}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "not a student",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/start",
			body:     []byte(`{"video_id": 7}`),
			token:    getNonStudentToken(t, app.conf),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "missing video",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/start",
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"video_id": "this field is required"}),
		},
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/drowsiness/start", token, []byte(`{"video_id": 7}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			SessionID string `json:"session_id"`
			AuthCode  string `json:"auth_code"`
			Message   string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Regexp(t, authCodeRe, resp.AuthCode)
		assert.NotEmpty(t, resp.Message)

		sess, err := app.sessions.GetSession(context.Background(), resp.SessionID)
		require.NoError(t, err)
		assert.Equal(t, student, sess.StudentUID)
		assert.Equal(t, videoID, sess.VideoID)
		assert.Equal(t, drowsiness.StateCreated, sess.State())

		pairing, err := app.realtime.GetPairing(context.Background(), resp.SessionID)
		require.NoError(t, err)
		assert.Equal(t, resp.AuthCode, pairing.AuthCode)
		assert.False(t, pairing.Paired)
	})
}

func Test_drowsinessApi_verify(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, student)

	req, rec := newAuthRequest(http.MethodPost, "/v1/drowsiness/start", token, []byte(`{"video_id": 7}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var started struct {
		SessionID string `json:"session_id"`
		AuthCode  string `json:"auth_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	verifyBody := marchallObj(t, map[string]string{"code": started.AuthCode})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "malformed code",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/verify",
			body:     []byte(`{"code": "12ab"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"code": "must be a 6-digit code"}),
		},
		{
			name:     "ok",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/verify",
			body:     verifyBody,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]string{"session_id": started.SessionID, "message": "device paired"}),
		},
		{
			name:     "single use",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/verify",
			body:     verifyBody,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "invalid auth code"}),
		},
	})

	sess, err := app.sessions.GetSession(context.Background(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, drowsiness.StatePaired, sess.State())
}

func Test_drowsinessApi_finish(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, student)
	path := "/v1/drowsiness/finish"

	sess := testutil.CreateSession(t, app.sessions, "s1", student, videoID, true)
	testutil.WriteLandmarks(t, app.store, sess.ID, 3600) // 24 shards, 1 window
	testutil.AppendPPG(t, app.realtime, sess.ID, testutil.PPG(time.Now(), 100, app.conf.Drowsiness.PPGSamplingRate))
	body := marchallObj(t, map[string]string{"session_id": sess.ID})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no token",
			method:   http.MethodPost,
			path:     path,
			body:     body,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "missing session id",
			method:   http.MethodPost,
			path:     path,
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"session_id": "this field is required"}),
		},
		{
			name:     "unknown session",
			method:   http.MethodPost,
			path:     path,
			body:     []byte(`{"session_id": "nope"}`),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "session not found"}),
		},
		{
			name:     "other student",
			method:   http.MethodPost,
			path:     path,
			body:     body,
			token:    getToken(t, app.conf, "student-2"),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "session belongs to another student"}),
		},
		{
			name:     "ok",
			method:   http.MethodPost,
			path:     path,
			body:     body,
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{
				"session_id": sess.ID,
				"prediction": map[string]interface{}{"drowsiness_level": score, "segments": 1, "windows": 1},
				"scores":     []interface{}{map[string]interface{}{"timestamp": 0, "drowsiness_score": score}},
				"message":    "session scored",
			}),
		},
		{
			name:     "already finished",
			method:   http.MethodPost,
			path:     path,
			body:     body,
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "session already finished"}),
		},
	})

	t.Run("same video again", func(t *testing.T) {
		again := testutil.CreateSession(t, app.sessions, "s2", student, videoID, true)
		req, rec := newAuthRequest(http.MethodPost, path, token, marchallObj(t, map[string]string{"session_id": again.ID}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "drowsiness was already analysed for this video"}),
		}, rec)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "levels",
			method:   http.MethodGet,
			path:     "/v1/drowsiness/levels/" + strconv.Itoa(videoID),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{
				"video_id": videoID,
				"levels":   []interface{}{map[string]interface{}{"t": 0, "value": score}},
			}),
		},
		{
			name:     "levels of another student",
			method:   http.MethodGet,
			path:     "/v1/drowsiness/levels/" + strconv.Itoa(videoID),
			token:    getToken(t, app.conf, "student-2"),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"video_id": videoID, "levels": []interface{}{}}),
		},
		{
			name:     "invalid video",
			method:   http.MethodGet,
			path:     "/v1/drowsiness/levels/abc",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid video id"}),
		},
	})
}

func Test_drowsinessApi_finishInsufficientViewing(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, student)

	sess := testutil.CreateSession(t, app.sessions, "s1", student, videoID, true)
	testutil.WriteLandmarks(t, app.store, sess.ID, 1500)
	testutil.AppendPPG(t, app.realtime, sess.ID, testutil.PPG(time.Now(), 100, app.conf.Drowsiness.PPGSamplingRate))

	runHTTPTests(t, app, []httpTest{
		{
			name:     "too short",
			method:   http.MethodPost,
			path:     "/v1/drowsiness/finish",
			body:     marchallObj(t, map[string]string{"session_id": sess.ID}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "insufficient viewing time"}),
		},
	})
}

func Test_drowsinessApi_session(t *testing.T) {
	app := setup(t)
	sess := testutil.CreateSession(t, app.sessions, "s1", student, videoID, true)

	req, rec := newAuthRequest(http.MethodGet, "/v1/drowsiness/sessions/"+sess.ID, getToken(t, app.conf, student))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sess.ID, got["session_id"])
	assert.Equal(t, "paired", got["state"])
	assert.Equal(t, true, got["paired"])
	assert.Nil(t, got["finished_at"])
	assert.NotContains(t, got, "auth_code")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "other student",
			method:   http.MethodGet,
			path:     "/v1/drowsiness/sessions/" + sess.ID,
			token:    getToken(t, app.conf, "student-2"),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "session belongs to another student"}),
		},
		{
			name:     "unknown",
			method:   http.MethodGet,
			path:     "/v1/drowsiness/sessions/nope",
			token:    getToken(t, app.conf, student),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "session not found"}),
		},
	})
}
