package ez

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	resp "user-account-api/internal/transport/http/response"
)

// 绑定方式
type Binder string

const (
	BindStrictJSON Binder = "strict_json" // JSON，未知字段直接 400
	BindNone       Binder = "none"        // 不绑定，自己从 c.Param 取
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("maxbytes", maxBytes)
	}
}

// maxBytes 按字节计长度（validator 自带的 max 按字符计）
func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil || fl.Field().Kind() != reflect.String {
		return false
	}
	return len(fl.Field().String()) <= n
}

// AErr 统一错误对象；Code 即 HTTP 状态码
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Conflict(msg string) error     { return &AErr{Code: resp.CodeConflict, Msg: msg} }

// Action I 入参，O 出参
type Action[I any, O any] struct {
	Method  string // GET / POST / PUT / PATCH / DELETE
	Path    string // 例："/user/:id"
	Binder  Binder
	Status  int  // 成功状态码，默认 200
	NoBody  bool // 成功时不写响应体
	Handler func(c *gin.Context, in *I) (O, error)
}

type EZ struct {
	g   *gin.RouterGroup
	log *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l}
}

// RegisterAction 在当前 EZ 下注册动作接口
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	status := a.Status
	if status == 0 {
		status = http.StatusOK
	}

	h := func(c *gin.Context) {
		// 1) 绑定入参
		var in I
		if err := bind(c, a.Binder, &in); err != nil {
			writeErr(c, e.log, err)
			return
		}

		// 2) 执行
		out, err := a.Handler(c, &in)
		if err != nil {
			writeErr(c, e.log, err)
			return
		}

		// 3) 输出
		if a.NoBody {
			c.Status(status)
			return
		}
		c.JSON(status, out)
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

func bind(c *gin.Context, b Binder, in any) error {
	var err error
	switch b {
	case BindStrictJSON:
		err = bindStrictJSON(c.Request, in)
	default: // BindNone
		return nil
	}
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &AErr{Code: resp.CodeTooLarge, Msg: "request body too large", Err: err}
	}
	return &AErr{Code: resp.CodeBadRequest, Msg: describeBindErr(err), Err: err}
}

func bindStrictJSON(req *http.Request, in any) error {
	if req.Body == nil {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(in); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return binding.Validator.ValidateStruct(in)
}

// describeBindErr 把 validator 的报错压成一行可读信息
func describeBindErr(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "maxbytes":
			parts = append(parts, fmt.Sprintf("%s must be at most %s bytes", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// writeErr AErr 按其 Code 输出；其余一律 500，原因只进日志
func writeErr(c *gin.Context, l *zap.Logger, err error) {
	var ae *AErr
	if errors.As(err, &ae) {
		if ae.Code >= http.StatusInternalServerError {
			logInternal(c, l, err)
		}
		c.AbortWithStatusJSON(ae.Code, resp.Error(ae.Code, ae.Msg))
		return
	}
	logInternal(c, l, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, resp.Error(resp.CodeServerError, ""))
}

func logInternal(c *gin.Context, l *zap.Logger, err error) {
	_ = c.Error(err)
	l.Error("request failed",
		zap.String("rid", c.GetString("rid")),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
}
