package response

import "github.com/gin-gonic/gin"

const (
	MsgMissingData = "Missing data"
	MsgServerError = "Server Error"
)

type ErrorBody struct {
	Error string `json:"error"`
}

func JSON(c *gin.Context, httpStatus int, data interface{}) {
	c.JSON(httpStatus, data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{Error: message})
}
