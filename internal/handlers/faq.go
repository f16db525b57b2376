package handlers

import (
	"net/http"
	"strconv"
	"time"

	"faqminer/internal/cache"
	"faqminer/internal/database"
	"faqminer/internal/models"
	"faqminer/internal/synthesis"

	"github.com/labstack/echo/v4"
)

const faqListCacheKey = "faq:published"
const faqListCacheTTL = 5 * time.Minute

// FAQListResponse is the public FAQ listing
type FAQListResponse struct {
	FAQs  []models.FAQGroup `json:"faqs"`
	Count int               `json:"count"`
}

// FeedbackRequest records whether an answer helped
type FeedbackRequest struct {
	Helpful bool `json:"helpful"`
}

// ReorderRequest sets the display order of FAQ groups
type ReorderRequest struct {
	IDs []int64 `json:"ids"`
}

// PublishRequest toggles public visibility of an FAQ group
type PublishRequest struct {
	Published bool `json:"published"`
}

// ListFAQsHandler returns published FAQ groups ordered for display
// @Summary List published FAQs
// @Description Returns published FAQ groups in display order
// @Tags FAQ
// @Produce json
// @Success 200 {object} FAQListResponse
// @Failure 500 {object} map[string]string
// @Router /api/faqs [get]
func ListFAQsHandler(store *database.Store, c8 *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		if cached, ok := c8.Get(faqListCacheKey); ok {
			return c.JSON(http.StatusOK, cached)
		}

		groups, err := store.ListPublishedGroups(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load FAQs"})
		}

		response := FAQListResponse{FAQs: groups, Count: len(groups)}
		c8.Set(faqListCacheKey, response, faqListCacheTTL)
		return c.JSON(http.StatusOK, response)
	}
}

// ListAllFAQsHandler returns every FAQ group including unpublished ones
// @Summary List all FAQ groups
// @Description Returns all FAQ groups, published or not
// @Tags Admin
// @Produce json
// @Success 200 {object} FAQListResponse
// @Failure 500 {object} map[string]string
// @Router /api/admin/faqs [get]
func ListAllFAQsHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		groups, err := store.ListGroups(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load FAQs"})
		}
		return c.JSON(http.StatusOK, FAQListResponse{FAQs: groups, Count: len(groups)})
	}
}

// GetFAQHandler returns one FAQ group with its member questions
// @Summary Get FAQ group
// @Description Returns an FAQ group and the questions clustered into it
// @Tags FAQ
// @Produce json
// @Param id path int true "FAQ group ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/faqs/{id} [get]
func GetFAQHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := groupIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid FAQ group ID"})
		}

		group, err := store.GetGroup(c.Request().Context(), id)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "FAQ group not found"})
		}

		questions, err := store.ListGroupQuestions(c.Request().Context(), id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load questions"})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"faq":       group,
			"questions": questions,
		})
	}
}

// FAQViewHandler counts a view of an FAQ group
// @Summary Record FAQ view
// @Tags FAQ
// @Produce json
// @Param id path int true "FAQ group ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /api/faqs/{id}/view [post]
func FAQViewHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := groupIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid FAQ group ID"})
		}
		if err := store.IncrementViewCount(c.Request().Context(), id); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to record view"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// FAQFeedbackHandler records helpful / not-helpful feedback on an answer
// @Summary Record FAQ feedback
// @Tags FAQ
// @Accept json
// @Produce json
// @Param id path int true "FAQ group ID"
// @Param request body FeedbackRequest true "Feedback"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /api/faqs/{id}/feedback [post]
func FAQFeedbackHandler(store *database.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := groupIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid FAQ group ID"})
		}

		var req FeedbackRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}

		if err := store.AddFeedback(c.Request().Context(), id, req.Helpful); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to record feedback"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// PublishFAQHandler toggles whether an FAQ group is publicly listed
// @Summary Publish or unpublish an FAQ group
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "FAQ group ID"
// @Param request body PublishRequest true "Publish state"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /api/admin/faqs/{id}/publish [put]
func PublishFAQHandler(store *database.Store, c8 *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := groupIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid FAQ group ID"})
		}

		var req PublishRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}

		if err := store.SetPublished(c.Request().Context(), id, req.Published); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update publish state"})
		}
		c8.Delete(faqListCacheKey)
		return c.NoContent(http.StatusNoContent)
	}
}

// ReorderFAQsHandler sets a new display order for FAQ groups
// @Summary Reorder FAQ groups
// @Description Assigns display order 1..n following the submitted ID list
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body ReorderRequest true "Ordered FAQ group IDs"
// @Success 204
// @Failure 400 {object} map[string]string
// @Router /api/admin/faqs/reorder [put]
func ReorderFAQsHandler(store *database.Store, c8 *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ReorderRequest
		if err := c.Bind(&req); err != nil || len(req.IDs) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}

		if err := store.ReorderGroups(c.Request().Context(), req.IDs); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to reorder FAQs"})
		}
		c8.Delete(faqListCacheKey)
		return c.NoContent(http.StatusNoContent)
	}
}

// SynthesizeFAQHandler regenerates the answer for one FAQ group
// @Summary Regenerate FAQ answer
// @Description Re-runs answer synthesis over the group's questions and source emails
// @Tags Admin
// @Produce json
// @Param id path int true "FAQ group ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /api/admin/faqs/{id}/synthesize [post]
func SynthesizeFAQHandler(store *database.Store, synth *synthesis.Synthesizer, c8 *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := groupIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid FAQ group ID"})
		}

		if err := synth.SynthesizeGroup(c.Request().Context(), id); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "answer synthesis failed"})
		}
		c8.Delete(faqListCacheKey)

		group, err := store.GetGroup(c.Request().Context(), id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to reload FAQ group"})
		}
		return c.JSON(http.StatusOK, map[string]string{"answer": group.Answer})
	}
}

func groupIDParam(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
