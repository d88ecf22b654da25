package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classsync/internal/notify"
)

func (s *server) listNotifications(c *gin.Context) {
	who := caller(c)
	items, err := s.inbox.ListForRecipient(c.Request.Context(), who.Subject, notify.Role(who.Role), notify.InboxLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

func (s *server) markRead(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	n, err := s.inbox.MarkRead(c.Request.Context(), caller(c).Subject, req.IDs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
