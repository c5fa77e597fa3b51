package routes

import (
	"errors"
	"net/http"

	"persona-advisor/middleware"
	"persona-advisor/services"
	"persona-advisor/utils"

	"github.com/gin-gonic/gin"
)

type personaRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type personaUpdateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func SetupPersonaRoutes(api *gin.RouterGroup, personas *services.PersonaService, jobs *services.JobService) {
	group := api.Group("/personas")

	group.POST("", func(c *gin.Context) {
		var req personaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		persona, err := personas.CreatePersona(ctx, middleware.GetUserID(c), req.Name, req.Description)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create persona", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, persona)
	})

	group.GET("", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		list, err := personas.ListPersonas(ctx, middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list personas", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"personas": list})
	})

	// Returns the persona with its namespace readiness for querying
	group.GET("/:personaID", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		persona, err := personas.GetPersonaForOwner(ctx, c.Param("personaID"), middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, services.ErrPersonaNotFound) {
				utils.RespondWithNotFound(c, "Persona not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load persona", nil)
			return
		}

		status, err := personas.Status(ctx, persona)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to check persona status", nil)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	group.PUT("/:personaID", func(c *gin.Context) {
		var req personaUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		persona, err := personas.UpdatePersona(ctx, c.Param("personaID"), middleware.GetUserID(c), req.Name, req.Description)
		if err != nil {
			if errors.Is(err, services.ErrPersonaNotFound) {
				utils.RespondWithNotFound(c, "Persona not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to update persona", nil)
			return
		}
		c.JSON(http.StatusOK, persona)
	})

	// Deleting a persona removes its vector namespace as well
	group.DELETE("/:personaID", func(c *gin.Context) {
		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		err := personas.DeletePersona(ctx, c.Param("personaID"), middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, services.ErrPersonaNotFound) {
				utils.RespondWithNotFound(c, "Persona not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to delete persona", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "persona deleted"})
	})

	group.GET("/:personaID/jobs", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		list, err := jobs.ListJobs(ctx, c.Param("personaID"), middleware.GetUserID(c), 50)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list jobs", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": list})
	})
}
