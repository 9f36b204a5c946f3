package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-account-api/internal/domain"
	"user-account-api/internal/service"
	"user-account-api/internal/transport/http/ez"
)

// UserAPI UserHandler 依赖的服务能力
type UserAPI interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.PublicUser, error)
	Read(ctx context.Context, requestedID int64, cred domain.Credential) (*domain.PublicUser, error)
	Update(ctx context.Context, requestedID int64, cred domain.Credential, in service.UpdateInput) (*domain.PublicUser, error)
	Delete(ctx context.Context, requestedID int64, cred domain.Credential) error
}

type UserHandler struct {
	svc UserAPI
	log *zap.Logger
}

func NewUserHandler(svc UserAPI, l *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: l}
}

type CreateUserRequest struct {
	Name     string `json:"name"     binding:"required,max=64"`
	Email    string `json:"email"    binding:"required,email,max=191"`
	Password string `json:"password" binding:"required,maxbytes=72"`
}

// UpdateUserRequest email 不可改，带上会被当作未知字段拒绝
type UpdateUserRequest struct {
	Name     *string `json:"name"     binding:"omitnil,min=1,max=64"`
	Password *string `json:"password" binding:"omitnil,min=1,maxbytes=72"`
}

func (h *UserHandler) MountAPI(g *gin.RouterGroup) {
	e := ez.New(g, h.log)

	ez.RegisterAction(e, ez.Action[CreateUserRequest, *domain.PublicUser]{
		Method:  http.MethodPost,
		Path:    "/user",
		Binder:  ez.BindStrictJSON,
		Status:  http.StatusCreated,
		Handler: h.create,
	})
	ez.RegisterAction(e, ez.Action[struct{}, *domain.PublicUser]{
		Method:  http.MethodGet,
		Path:    "/user/:id",
		Binder:  ez.BindNone,
		Handler: h.read,
	})
	ez.RegisterAction(e, ez.Action[UpdateUserRequest, *domain.PublicUser]{
		Method:  http.MethodPatch,
		Path:    "/user/:id",
		Binder:  ez.BindStrictJSON,
		Handler: h.update,
	})
	ez.RegisterAction(e, ez.Action[struct{}, struct{}]{
		Method:  http.MethodDelete,
		Path:    "/user/:id",
		Binder:  ez.BindNone,
		NoBody:  true,
		Handler: h.delete,
	})
}

func (h *UserHandler) create(c *gin.Context, in *CreateUserRequest) (*domain.PublicUser, error) {
	u, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (h *UserHandler) read(c *gin.Context, _ *struct{}) (*domain.PublicUser, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	u, err := h.svc.Read(c.Request.Context(), id, credential(c))
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (h *UserHandler) update(c *gin.Context, in *UpdateUserRequest) (*domain.PublicUser, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	u, err := h.svc.Update(c.Request.Context(), id, credential(c), service.UpdateInput{
		Name:     in.Name,
		Password: in.Password,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (h *UserHandler) delete(c *gin.Context, _ *struct{}) (struct{}, error) {
	id, err := pathID(c)
	if err != nil {
		return struct{}{}, err
	}
	if err := h.svc.Delete(c.Request.Context(), id, credential(c)); err != nil {
		return struct{}{}, mapErr(err)
	}
	return struct{}{}, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, ez.BadRequest("invalid id")
	}
	return id, nil
}

// credential 头存在（哪怕是空值）就算带了凭证
func credential(c *gin.Context) domain.Credential {
	vals := c.Request.Header.Values("Authorization")
	if len(vals) == 0 {
		return domain.Credential{}
	}
	return domain.BearerCredential(vals[0])
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, service.ErrMissingCredential):
		return ez.BadRequest("missing authorization header")
	case errors.Is(err, service.ErrInvalidCredential):
		return ez.Unauthorized("invalid token")
	case errors.Is(err, service.ErrIdentityMismatch):
		return ez.Forbidden("forbidden")
	case errors.Is(err, domain.ErrNotFound):
		return ez.NotFound("user not found")
	case errors.Is(err, domain.ErrConflict):
		return ez.Conflict("email already registered")
	case errors.Is(err, service.ErrPasswordTooLong):
		return ez.BadRequest("password must be at most 72 bytes")
	}
	return err
}
