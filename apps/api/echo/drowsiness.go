package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
)

type drowsinessAPI struct {
	svc      *drowsiness.Service
	validate *validator.Validate
	log      core.Logger
	upgrader websocket.Upgrader
}

type (
	startResponse struct {
		SessionID string `json:"session_id"`
		AuthCode  string `json:"auth_code"`
		Message   string `json:"message"`
	}

	verifyResponse struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}

	finishResponse struct {
		drowsiness.FinishResult
		Message string `json:"message"`
	}

	levelsResponse struct {
		VideoID int                `json:"video_id"`
		Levels  []drowsiness.Level `json:"levels"`
	}

	sessionResponse struct {
		drowsiness.Session
		State drowsiness.State `json:"state"`
	}
)

func registerDrowsinessAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *drowsinessAPI) {
	dg := g.Group("/drowsiness")
	auth := []echo.MiddlewareFunc{jwt, studentMiddleware()}

	// device-facing
	dg.POST("/verify", api.verify)

	// student endpoints
	dg.POST("/start", api.start, auth...)
	dg.POST("/finish", api.finish, auth...)
	dg.GET("/levels/:video_id", api.levels, auth...)
	dg.GET("/sessions/:session_id", api.session, auth...)
}

// Handlers

func (api *drowsinessAPI) bind(ctx echo.Context, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if api.validate != nil {
		if err := api.validate.Struct(data); err != nil {
			return err
		}
	}
	return nil
}

func (api *drowsinessAPI) start(ctx echo.Context) error {
	var data drowsiness.StartSession
	if err := api.bind(ctx, &data); err != nil {
		return err
	}

	sess, err := api.svc.Start(ctx.Request().Context(), studentUID(ctx), data.VideoID)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusCreated, startResponse{
		SessionID: sess.ID,
		AuthCode:  sess.AuthCode,
		Message:   "session started, enter the code on your device",
	})
}

func (api *drowsinessAPI) verify(ctx echo.Context) error {
	var data drowsiness.VerifyCode
	if err := api.bind(ctx, &data); err != nil {
		return err
	}

	sessionID, err := api.svc.Verify(ctx.Request().Context(), data.Code)
	if err != nil {
		return errors.Wrap(err, "verifying auth code")
	}
	return ctx.JSON(http.StatusOK, verifyResponse{SessionID: sessionID, Message: "device paired"})
}

func (api *drowsinessAPI) finish(ctx echo.Context) error {
	var data drowsiness.FinishSession
	if err := api.bind(ctx, &data); err != nil {
		return err
	}

	res, err := api.svc.Finish(ctx.Request().Context(), studentUID(ctx), data.SessionID)
	if err != nil {
		return errors.Wrap(err, "finishing session")
	}
	return ctx.JSON(http.StatusOK, finishResponse{FinishResult: res, Message: "session scored"})
}

func (api *drowsinessAPI) levels(ctx echo.Context) error {
	videoID, err := strconv.Atoi(ctx.Param("video_id"))
	if err != nil || videoID < 1 {
		return core.NewBadRequestError("invalid video id")
	}

	levels, err := api.svc.Levels(ctx.Request().Context(), studentUID(ctx), videoID)
	if err != nil {
		return errors.Wrap(err, "querying levels")
	}
	return ctx.JSON(http.StatusOK, levelsResponse{VideoID: videoID, Levels: levels})
}

func (api *drowsinessAPI) session(ctx echo.Context) error {
	sess, err := api.svc.GetSession(ctx.Request().Context(), studentUID(ctx), ctx.Param("session_id"))
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, sessionResponse{Session: sess, State: sess.State()})
}
