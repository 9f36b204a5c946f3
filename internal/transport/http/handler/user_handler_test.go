package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"user-account-api/internal/core/auth"
	"user-account-api/internal/core/database"
	"user-account-api/internal/domain"
	"user-account-api/internal/feature/user"
	"user-account-api/internal/repo"
	"user-account-api/internal/service"
	"user-account-api/internal/transport/http/handler"
	resp "user-account-api/internal/transport/http/response"
	"user-account-api/internal/transport/http/router"
)

func init() { gin.SetMode(gin.TestMode) }

type env struct {
	engine *gin.Engine
	store  *repo.UserRepo
	jwt    *auth.JWTer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "http.db") + "?_pragma=busy_timeout(5000)",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&user.UserModel{}))
	t.Cleanup(func() { _ = database.Close(db) })

	store := repo.NewUserRepo(db)
	j := auth.NewJWTer("http-secret", "user-account-api", time.Hour)
	svc := service.NewUserService(store, j, nil, zap.NewNop())
	h := handler.NewUserHandler(svc, zap.NewNop())
	return &env{engine: router.NewAPIEngine(zap.NewNop(), router.Options{}, h), store: store, jwt: j}
}

func (e *env) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *env) token(t *testing.T, id int64) map[string]string {
	t.Helper()
	tok, err := e.jwt.Issue(id)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decodeUser(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) resp.Resp {
	t.Helper()
	var r resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func passwordMatches(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

const createBody = `{"name":"NAME","email":"test@test.com","password":"12345asbcd"}`

func TestHTTP_CreateAndReadScenario(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/user", createBody, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeUser(t, w)
	assert.Equal(t, "NAME", created["name"])
	assert.Equal(t, "test@test.com", created["email"])
	assert.NotContains(t, created, "password")
	assert.NotContains(t, created, "passwordHash")
	id := int64(created["id"].(float64))
	path := "/user/" + strconv.FormatInt(id, 10)

	w = e.do(http.MethodGet, path, "", e.token(t, id))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decodeUser(t, w))

	w = e.do(http.MethodGet, path, "", e.token(t, -1))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 403, decodeErr(t, w).Code)

	w = e.do(http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, path, "", map[string]string{"Authorization": "Bearer asdfasdf"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHTTP_CreateConflict(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/user", createBody, nil).Code)

	w := e.do(http.MethodPost, "/user", `{"name":"other","email":"test@test.com","password":"x"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 409, decodeErr(t, w).Code)
}

func TestHTTP_CreateValidation(t *testing.T) {
	e := newEnv(t)
	cases := map[string]string{
		"missing name":     `{"email":"a@b.com","password":"x"}`,
		"empty name":       `{"name":"","email":"a@b.com","password":"x"}`,
		"missing email":    `{"name":"n","password":"x"}`,
		"bad email":        `{"name":"n","email":"not-an-email","password":"x"}`,
		"missing password": `{"name":"n","email":"a@b.com"}`,
		"unknown field":    `{"name":"n","email":"a@b.com","password":"x","role":"admin"}`,
		"wrong type":       `{"name":1,"email":"a@b.com","password":"x"}`,
		"not json":         `name=n`,
		"two objects":      `{"name":"n","email":"a@b.com","password":"x"}{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/user", body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := e.do(http.MethodPost, "/user", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTP_PasswordLimitCountsBytes(t *testing.T) {
	e := newEnv(t)
	long := strings.Repeat("é", 40) // 40 个字符，80 字节

	w := e.do(http.MethodPost, "/user", `{"name":"n","email":"long@test.com","password":"`+long+`"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, decodeErr(t, w).Msg, "password must be at most 72 bytes")

	// 72 字节以内的多字节密码可以注册
	w = e.do(http.MethodPost, "/user", `{"name":"n","email":"ok@test.com","password":"`+strings.Repeat("é", 36)+`"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(decodeUser(t, w)["id"].(float64))

	w = e.do(http.MethodPatch, "/user/"+strconv.FormatInt(id, 10), `{"password":"`+long+`"}`, e.token(t, id))
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestHTTP_UpdateScenario(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/user", createBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decodeUser(t, w)["id"].(float64))
	path := "/user/" + strconv.FormatInt(id, 10)
	patch := `{"name":"NEW_NAME","password":"NEW_PASSWORD"}`

	// 身份不符：403 且库里不变
	w = e.do(http.MethodPatch, path, patch, e.token(t, id+1))
	require.Equal(t, http.StatusForbidden, w.Code)
	stored, err := e.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "NAME", stored.Name)
	assert.True(t, passwordMatches("12345asbcd", stored.PasswordHash))

	w = e.do(http.MethodPatch, path, patch, e.token(t, id))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeUser(t, w)
	assert.Equal(t, "NEW_NAME", out["name"])
	assert.Equal(t, "test@test.com", out["email"])

	stored, err = e.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "NEW_NAME", stored.Name)
	assert.True(t, passwordMatches("NEW_PASSWORD", stored.PasswordHash))
}

func TestHTTP_UpdateRejects(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/user", createBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decodeUser(t, w)["id"].(float64))
	path := "/user/" + strconv.FormatInt(id, 10)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, `{"name":"x"}`, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPatch, path, `{"name":"x"}`, map[string]string{"Authorization": "Bearer nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, `{"email":"new@test.com"}`, e.token(t, id)).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, path, `{"name":""}`, e.token(t, id)).Code)

	stored, err := e.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "NAME", stored.Name)
	assert.Equal(t, "test@test.com", stored.Email)
}

func TestHTTP_DeleteLifecycle(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/user", createBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decodeUser(t, w)["id"].(float64))
	path := "/user/" + strconv.FormatInt(id, 10)
	tok := e.token(t, id)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, path, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodDelete, path, "", map[string]string{"Authorization": "Bearer x"}).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, "", e.token(t, id+1)).Code)

	w = e.do(http.MethodDelete, path, "", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, "", tok).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPatch, path, `{"name":"x"}`, tok).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, path, "", tok).Code)

	// email 已释放
	assert.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/user", createBody, nil).Code)
}

func TestHTTP_MismatchOnMissingRecordIsForbidden(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/user/999", "", e.token(t, 1)).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/user/999", "", e.token(t, 999)).Code)
}

func TestHTTP_BadPathID(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/user/abc", "", e.token(t, 1)).Code)
}

func TestHTTP_Health(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	e.do(http.MethodGet, "/user/abc", "", nil)
	w = e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/user/:id"`)
}

/* ---------- error mapping with a mocked service ---------- */

type MockUserAPI struct{ mock.Mock }

func (m *MockUserAPI) Create(ctx context.Context, in service.CreateInput) (*domain.PublicUser, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PublicUser), args.Error(1)
}

func (m *MockUserAPI) Read(ctx context.Context, id int64, cred domain.Credential) (*domain.PublicUser, error) {
	args := m.Called(ctx, id, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PublicUser), args.Error(1)
}

func (m *MockUserAPI) Update(ctx context.Context, id int64, cred domain.Credential, in service.UpdateInput) (*domain.PublicUser, error) {
	args := m.Called(ctx, id, cred, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PublicUser), args.Error(1)
}

func (m *MockUserAPI) Delete(ctx context.Context, id int64, cred domain.Credential) error {
	return m.Called(ctx, id, cred).Error(0)
}

func TestUserHandler_UnexpectedErrorIs500(t *testing.T) {
	svc := new(MockUserAPI)
	h := handler.NewUserHandler(svc, zap.NewNop())
	engine := router.NewAPIEngine(zap.NewNop(), router.Options{}, h)

	svc.On("Read", mock.Anything, int64(7), domain.BearerCredential("Bearer t")).
		Return(nil, errors.New("connection refused")).Once()

	req := httptest.NewRequest(http.MethodGet, "/user/7", nil)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	svc.AssertExpectations(t)
}

func TestUserHandler_PassesCredentialAndInput(t *testing.T) {
	svc := new(MockUserAPI)
	h := handler.NewUserHandler(svc, zap.NewNop())
	engine := router.NewAPIEngine(zap.NewNop(), router.Options{}, h)

	svc.On("Update", mock.Anything, int64(3), domain.BearerCredential(""), mock.MatchedBy(func(in service.UpdateInput) bool {
		return in.Name != nil && *in.Name == "n" && in.Password == nil
	})).Return(&domain.PublicUser{ID: 3, Name: "n", Email: "e@x.y"}, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/user/3", bytes.NewBufferString(`{"name":"n"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header["Authorization"] = []string{""}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestUserHandler_PasswordTooLongFromServiceIs400(t *testing.T) {
	svc := new(MockUserAPI)
	h := handler.NewUserHandler(svc, zap.NewNop())
	engine := router.NewAPIEngine(zap.NewNop(), router.Options{}, h)

	svc.On("Create", mock.Anything, mock.Anything).Return(nil, service.ErrPasswordTooLong).Once()

	req := httptest.NewRequest(http.MethodPost, "/user", strings.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}
