package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/drowsiness/apps/api/echo"
	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/inference"
	"github.com/trezcool/drowsiness/core/landmark"
	inferencesvc "github.com/trezcool/drowsiness/services/inference"
	realtimesvc "github.com/trezcool/drowsiness/services/realtime"
	inmemdb "github.com/trezcool/drowsiness/storage/database/inmem"
)

const (
	student = "student-1"
	videoID = 7
	score   = 2.5
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	Server
	conf     *core.Config
	sessions drowsiness.SessionRepository
	realtime *realtimesvc.Inmem
	store    *landmark.Store
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Drowsiness.DataDir = t.TempDir()
	conf.Drowsiness.LandmarkCount = 2
	conf.Drowsiness.ChunkSize = 160
	conf.Drowsiness.ChunksPerFile = 10

	// set up DB & repos
	db := inmemdb.Open()
	app := &testApp{
		conf:     conf,
		sessions: inmemdb.NewSessionRepository(db),
		realtime: realtimesvc.NewInmem(time.Hour),
		store:    landmark.NewStore(conf.Drowsiness),
	}

	// set up services
	svc := drowsiness.NewService(conf.Drowsiness, drowsiness.Deps{
		Sessions:  app.sessions,
		Scores:    inmemdb.NewScoreRepository(db),
		Realtime:  app.realtime,
		Landmarks: app.store,
		Model: inference.NewService(
			inferencesvc.ConstantPredictor(score),
			inference.ShapeFromConfig(conf.Drowsiness),
			nil,
		),
	})

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	// set up server
	app.Server = NewServer(ServerDeps{
		Conf:          conf,
		DrowsinessSvc: svc,
		Validate:      validate,
		Translator:    translator,
	})
	t.Cleanup(func() { _ = app.Close() })
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, studentUID string) string {
	token, err := GenerateToken(conf, NewStudentClaims(conf, studentUID))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

// getNonStudentToken returns a valid token without the student portal claim.
func getNonStudentToken(t *testing.T, conf *core.Config) string {
	claims := NewStudentClaims(conf, "instructor-1")
	claims.IsStudent = false
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getNonStudentToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
