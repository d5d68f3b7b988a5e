package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"camgate/internal/generated"
)

// newAPIRouter は埋め込みのAPI定義からリクエスト照合用のルーターを作る
func newAPIRouter() (routers.Router, error) {
	doc, err := generated.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("API定義の読み込みに失敗: %w", err)
	}
	// ホスト名に依存せずパスだけで照合する
	doc.Servers = nil

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("API定義のルーター作成に失敗: %w", err)
	}
	return router, nil
}

// requestValidator はAPI定義に合わないリクエストを400で拒否する
// 定義に無いパスはそのまま通す
func requestValidator(router routers.Router, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(escapedRequest(c.Request))
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("不正なリクエスト")
			c.AbortWithStatusJSON(http.StatusBadRequest, generated.ErrorResponse{
				Error:     "invalid_request",
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		c.Next()
	}
}

// escapedRequest はパスをエンコードされたまま照合するためのリクエストの写し
// チャンネル名の %2F をパス区切りとして扱わない
func escapedRequest(req *http.Request) *http.Request {
	if req.URL.RawPath == "" {
		return req
	}
	clone := req.Clone(req.Context())
	clone.URL.Path = req.URL.RawPath
	clone.URL.RawPath = ""
	return clone
}
