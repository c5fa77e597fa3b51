package routes

import (
	"errors"
	"net/http"

	"persona-advisor/internal/ai"
	"persona-advisor/internal/logger"
	"persona-advisor/middleware"
	"persona-advisor/models"
	"persona-advisor/services"
	"persona-advisor/utils"

	"github.com/gin-gonic/gin"
)

// SetupChatRoutes wires the query endpoint: embed the question, retrieve
// citations from the persona's namespace, and generate a grounded answer.
// When retrieval comes back empty the answer degrades to ungrounded.
func SetupChatRoutes(api *gin.RouterGroup, personas *services.PersonaService, retriever *services.Retriever, gemini *ai.GeminiClient) {

	api.POST("/chat/query", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		persona, err := personas.GetPersonaForOwner(ctx, req.PersonaID, middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, services.ErrPersonaNotFound) {
				utils.RespondWithNotFound(c, "Persona not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load persona", nil)
			return
		}

		citations, err := retriever.Retrieve(ctx, persona.Namespace, req.Query, req.TopK)
		if err != nil {
			if errors.Is(err, ai.ErrEmptyQuery) {
				utils.RespondWithBadRequest(c, "Query must not be empty", nil)
				return
			}
			utils.RespondWithInternalError(c, "Retrieval failed", nil)
			return
		}

		excerpts := make([]string, len(citations))
		for i, cit := range citations {
			excerpts[i] = cit.Excerpt
		}

		answer, err := gemini.GenerateGroundedAnswer(ctx, req.Query, excerpts)
		if err != nil {
			logger.Error("answer generation failed", "persona_id", persona.ID, "error", err.Error())
			utils.RespondWithInternalError(c, "Failed to generate answer", nil)
			return
		}

		if citations == nil {
			citations = []models.Citation{}
		}
		c.JSON(http.StatusOK, models.QueryResponse{
			Answer:    answer,
			Grounded:  len(citations) > 0,
			Citations: citations,
		})
	})
}
