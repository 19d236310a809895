package controller

import (
	"errors"
	"strconv"

	"quiz_analytics_service/internal/model"
	"quiz_analytics_service/internal/service"
	"quiz_analytics_service/internal/util"

	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	AnalyticsService *service.AnalyticsService
}

func NewAnalyticsController(analyticsService *service.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{AnalyticsService: analyticsService}
}

// @Summary Submit a quiz attempt
// @Description Records the attempt, reconciles stats with the Lessons and Users services and returns the stored attempt plus the authoritative stats snapshot
// @Tags analytics
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body model.SubmitQuizRequest true "submission"
// @Success 200 {object} util.Response
// @Router /api/analytics/quiz/submit [post]
func (c *AnalyticsController) SubmitQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req model.SubmitQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID := strconv.FormatUint(uint64(user.UserID), 10)
	res, err := c.AnalyticsService.SubmitQuiz(ctx.Request.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, util.ErrPeerUnavailable) {
			util.BadGateway(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, res)
}
