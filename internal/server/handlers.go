package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camgate/internal/camera"
	"camgate/internal/channel"
	"camgate/internal/generated"
	"camgate/internal/permission"
	"camgate/internal/warmup"
)

// Dispatcher は境界チャンネルの呼び出しを処理する
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, method string) (bool, error)
}

// PermissionView は状態表示に使う許可処理の読み取り口
type PermissionView interface {
	Check(ctx context.Context) camera.Status
	PromptState() permission.PromptState
	PromptsIssued() int
}

// WarmupHistory は最後のウォームアップ結果を返す
type WarmupHistory interface {
	Last() (warmup.Report, bool)
}

// CamgateHandler は生成されたServerInterfaceを実装する
type CamgateHandler struct {
	dispatcher Dispatcher
	permission PermissionView
	warmups    WarmupHistory
}

var _ generated.ServerInterface = (*CamgateHandler)(nil)

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *CamgateHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
// 認可状態の取得はプロンプトを出さない
func (h *CamgateHandler) GetStatus(c *gin.Context) {
	response := generated.StatusResponse{
		Status:        generated.StatusResponseStatusRunning,
		Channel:       h.dispatcher.Name(),
		Authorization: generated.StatusResponseAuthorization(h.permission.Check(c.Request.Context())),
		PromptState:   generated.StatusResponsePromptState(h.permission.PromptState()),
		PromptsIssued: h.permission.PromptsIssued(),
		Timestamp:     time.Now(),
	}
	if h.warmups != nil {
		if report, ok := h.warmups.Last(); ok {
			response.LastWarmup = convertWarmupReport(report)
		}
	}

	c.JSON(http.StatusOK, response)
}

// InvokeChannel はチャンネルのメソッドを呼び出す
// requestCameraPermission はユーザーが応答するまで戻らない
func (h *CamgateHandler) InvokeChannel(c *gin.Context, name string, method string) {
	if name != h.dispatcher.Name() {
		c.JSON(http.StatusNotFound, errorResponse("channel_not_found", "指定されたチャンネルが見つかりません", name))
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), method)
	if err != nil {
		if errors.Is(err, channel.ErrNotImplemented) {
			c.JSON(http.StatusNotImplemented, errorResponse("not_implemented", err.Error(), method))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", err.Error(), ""))
		return
	}

	c.JSON(http.StatusOK, generated.ChannelResponse{Result: result})
}

// ヘルパー関数

func errorResponse(code, message, details string) generated.ErrorResponse {
	response := generated.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if details != "" {
		response.Details = &details
	}
	return response
}

func convertWarmupReport(report warmup.Report) *generated.WarmupReport {
	converted := &generated.WarmupReport{
		Id:         report.ID,
		Outcome:    generated.WarmupReportOutcome(report.Outcome),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if report.Device != "" {
		converted.Device = &report.Device
	}
	if report.Error != "" {
		converted.Error = &report.Error
	}
	if len(report.HintErrors) > 0 {
		converted.HintErrors = &report.HintErrors
	}
	if report.State != "" {
		state := generated.WarmupReportState(report.State)
		converted.State = &state
	}
	if !report.RunningAt.IsZero() {
		converted.RunningAt = &report.RunningAt
	}
	return converted
}
