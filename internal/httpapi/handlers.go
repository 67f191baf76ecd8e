package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/learning"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

type handler struct {
	db    *store.DB
	paths *learning.Generator
	rec   *learning.Recommender
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, engine.Validationf("%s must be an integer, got %q", name, s)
	}
	return n, nil
}

// GET /healthz
func (h *handler) health(c *gin.Context) {
	n, err := h.db.CountVideos(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "ok", "videos": n})
}

// GET /api/videos/search?tool=&difficulty=&min_score=&q=&limit=&offset=
func (h *handler) searchVideos(c *gin.Context) {
	tool, err := engine.ParseTool(c.Query("tool"), false)
	if err != nil {
		RespondError(c, err)
		return
	}
	diff, err := toolutil.NormDifficulty(c.Query("difficulty"))
	if err != nil {
		RespondError(c, err)
		return
	}
	q := engine.SearchQuery{Tool: tool, Difficulty: diff, Text: c.Query("q")}
	var limit, offset int
	for name, dst := range map[string]*int{"min_score": &q.MinScore, "limit": &limit, "offset": &offset} {
		if *dst, err = intQuery(c, name); err != nil {
			RespondError(c, err)
			return
		}
	}
	q.Limit = toolutil.Limit(limit, 20, 100)
	q.Offset = max(offset, 0)

	ctx := c.Request.Context()
	res, err := toolutil.Cached(ctx, toolutil.SearchKey(q), func(ctx context.Context) (engine.SearchResult, error) {
		return h.db.SearchVideos(ctx, q)
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

// GET /api/videos/stats?tool=
func (h *handler) videoStats(c *gin.Context) {
	tool, err := toolutil.NormTool(c.Query("tool"), engine.ToolAll, true)
	if err != nil {
		RespondError(c, err)
		return
	}
	stats, err := h.db.VideoStats(c.Request.Context(), tool)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"stats": stats})
}

// GET /api/paths?tool=&difficulty=
func (h *handler) listPaths(c *gin.Context) {
	tool, err := toolutil.NormTool(c.Query("tool"), engine.ToolAll, true)
	if err != nil {
		RespondError(c, err)
		return
	}
	diff, err := toolutil.NormDifficulty(c.Query("difficulty"))
	if err != nil {
		RespondError(c, err)
		return
	}
	paths, err := h.paths.List(c.Request.Context(), tool, diff)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"paths": paths})
}

// GET /api/paths/:id
func (h *handler) getPath(c *gin.Context) {
	d, err := h.paths.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, d)
}

func bindPath(c *gin.Context) (learning.PathInput, bool) {
	var in learning.PathInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, engine.Validationf("invalid path body: %v", err))
		return in, false
	}
	return in, true
}

// POST /api/paths
func (h *handler) createPath(c *gin.Context) {
	in, ok := bindPath(c)
	if !ok {
		return
	}
	p, err := h.paths.Create(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PUT /api/paths/:id
func (h *handler) updatePath(c *gin.Context) {
	in, ok := bindPath(c)
	if !ok {
		return
	}
	p, err := h.paths.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, p)
}

// DELETE /api/paths/:id deactivates; the path stays reachable by id.
func (h *handler) deactivatePath(c *gin.Context) {
	if err := h.db.DeactivatePath(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type generateRequest struct {
	Tool       string `json:"tool"`
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
}

// POST /api/paths/generate
func (h *handler) generatePaths(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, engine.Validationf("invalid body: %v", err))
		return
	}
	tool, err := engine.ParseTool(req.Tool, false)
	if err != nil {
		RespondError(c, err)
		return
	}
	diff, err := engine.ParseDifficulty(req.Difficulty)
	if err != nil {
		RespondError(c, err)
		return
	}
	paths, err := h.paths.Generate(c.Request.Context(), tool, diff, req.Count)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"paths": paths})
}

// GET /api/recommendations/:videoId?limit=
func (h *handler) recommend(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		RespondError(c, err)
		return
	}
	recs, err := h.rec.Recommend(c.Request.Context(), c.Param("videoId"), limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"video_id": c.Param("videoId"), "recommendations": recs})
}

// POST /api/feedback
func (h *handler) submitFeedback(c *gin.Context) {
	var f engine.Feedback
	if err := c.ShouldBindJSON(&f); err != nil {
		RespondError(c, engine.Validationf("invalid feedback body: %v", err))
		return
	}
	saved, err := h.db.SubmitFeedback(c.Request.Context(), f)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// GET /api/feedback/:videoId?limit=
func (h *handler) listFeedback(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		RespondError(c, err)
		return
	}
	list, err := h.db.ListFeedback(c.Request.Context(), c.Param("videoId"), toolutil.Limit(limit, 50, 500))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"video_id": c.Param("videoId"), "feedback": list})
}
