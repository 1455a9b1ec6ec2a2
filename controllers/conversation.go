package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ChatHub/pkg/errs"
	"ChatHub/pkg/services"
	"ChatHub/pkg/store"
)

type createConversationRequest struct {
	Title  string  `json:"title"`
	UserID *string `json:"user_id"`
}

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// respondError writes {"msg": ...} with the status for err. Unexpected
// failures are attached to the context for the access log and hidden from
// the client.
func respondError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, errs.ErrConfiguration) {
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"msg": msg})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errs.ErrValidation}, args...)...)
}

func CreateConversation(convs *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createConversationRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, badRequest("invalid request body"))
			return
		}
		conv, err := convs.Create(c.Request.Context(), body.Title, body.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

// ListConversations serves one page of summaries. "skip" is accepted in place
// of "offset".
func ListConversations(convs *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f store.SummaryFilter
		if uid := strings.TrimSpace(c.Query("user_id")); uid != "" {
			f.UserID = &uid
		}

		offsetParam := "offset"
		if _, ok := c.GetQuery("offset"); !ok {
			offsetParam = "skip"
		}
		var err error
		if f.Offset, err = intQuery(c, offsetParam, 0); err != nil {
			respondError(c, err)
			return
		}
		if f.Limit, err = intQuery(c, "limit", store.DefaultPageLimit); err != nil {
			respondError(c, err)
			return
		}

		sums, err := convs.List(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sums)
	}
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return v, nil
}

func GetConversation(convs *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := convs.Get(c.Request.Context(), c.Param("conversation_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func DeleteConversation(convs *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := convs.Delete(c.Request.Context(), c.Param("conversation_id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func AddMessage(convs *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createMessageRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, badRequest("invalid request body"))
			return
		}
		msg, err := convs.AddMessage(c.Request.Context(), c.Param("conversation_id"), body.Role, body.Content)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func ListMessages(convs *services.ConversationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := convs.Messages(c.Request.Context(), c.Param("conversation_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}
