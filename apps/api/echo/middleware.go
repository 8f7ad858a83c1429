package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const contextStudentKey = "student"

// studentMiddleware only lets student tokens through and stores the student UID in the context.
func studentMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			uid, err := contextStudent(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context student")
			}
			ctx.Set(contextStudentKey, uid)
			return next(ctx)
		}
	}
}

func studentUID(ctx echo.Context) string {
	uid, _ := ctx.Get(contextStudentKey).(string)
	return uid
}
