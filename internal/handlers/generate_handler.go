package handlers

import (
	"net/http"
	"strings"

	"taskboard/internal/generate"

	"github.com/gin-gonic/gin"
)

// GenerateRequest is the body of POST .../tasks/generate.
type GenerateRequest struct {
	Instructions string `json:"instructions" binding:"required"`
}

// GenerateTasks handles POST .../tasks/generate
// It returns drafts only; nothing is persisted. Identical instructions for the
// same project reuse the cached drafts until they expire.
func (h *Handler) GenerateTasks(c *gin.Context) {
	sc := scopeOf(c)
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	instructions := strings.TrimSpace(req.Instructions)
	key := draftKey(sc, instructions)

	if items, ok := h.Drafts.Get(key); ok {
		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items), "cached": true})
		return
	}

	items, err := h.Generator.Generate(c.Request.Context(), generate.Request{
		Instructions: instructions,
		WorkspaceID:  sc.WorkspaceID,
		ProjectID:    sc.ProjectID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Drafts.Set(key, items, h.DraftTTL)
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items), "cached": false})
}

func draftKey(sc projectScope, instructions string) string {
	return sc.WorkspaceID + "\x00" + sc.ProjectID + "\x00" + strings.ToLower(strings.Join(strings.Fields(instructions), " "))
}
