package routes

import (
	"context"
	"net/http"
	"time"

	"persona-advisor/internal/auth"
	"persona-advisor/internal/config"
	"persona-advisor/models"
	"persona-advisor/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, rdb *redis.Client) {
	authGroup := router.Group("/auth")

	usersCollection := db.Collection("users")

	setTokenCookies := func(c *gin.Context, pair *auth.TokenPair) {
		secure := cfg.GinMode == "release"
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("access_token", pair.AccessToken,
			int(time.Until(pair.AccessExp).Seconds()), "/", "", secure, true)
		c.SetCookie("refresh_token", pair.RefreshToken,
			int(time.Until(pair.RefreshExp).Seconds()), "/", "", secure, true)
	}

	// Register endpoint
	authGroup.POST("/register", func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		// Check if email already registered
		var existingUser models.User
		if err := usersCollection.FindOne(context.Background(), bson.M{"email": req.Email}).Decode(&existingUser); err == nil {
			utils.RespondWithConflict(c, "Email already registered")
			return
		}

		hashedPassword, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to process password", nil)
			return
		}

		user := models.User{
			Email:        req.Email,
			PasswordHash: hashedPassword,
			Name:         req.Name,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}

		result, err := usersCollection.InsertOne(context.Background(), user)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		userID := result.InsertedID.(primitive.ObjectID).Hex()
		pair, err := auth.IssueTokenPair(userID, req.Email, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}
		setTokenCookies(c, pair)

		c.JSON(http.StatusCreated, gin.H{
			"user": gin.H{
				"id":    userID,
				"email": req.Email,
				"name":  req.Name,
			},
			"tokens": pair,
		})
	})

	// Login endpoint
	authGroup.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := usersCollection.FindOne(context.Background(), bson.M{"email": req.Email}).Decode(&user); err != nil {
			utils.RespondWithUnauthorized(c, "Invalid email or password")
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid email or password")
			return
		}

		pair, err := auth.IssueTokenPair(user.ID.Hex(), user.Email, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}
		setTokenCookies(c, pair)

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"id":    user.ID.Hex(),
				"email": user.Email,
				"name":  user.Name,
			},
			"tokens": pair,
		})
	})

	// Refresh token endpoint
	authGroup.POST("/refresh", func(c *gin.Context) {
		refreshToken, err := c.Cookie("refresh_token")
		if err != nil || refreshToken == "" {
			refreshToken = utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		}
		if refreshToken == "" {
			utils.RespondWithUnauthorized(c, "Refresh token required")
			return
		}

		claims, err := auth.ValidateRefreshToken(refreshToken, rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid refresh token")
			return
		}

		// Rotate: revoke the used refresh token before issuing a new pair
		_ = auth.RevokeToken(claims.ID, true, rdb)

		pair, err := auth.IssueTokenPair(claims.UserID, claims.Email, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}
		setTokenCookies(c, pair)

		c.JSON(http.StatusOK, gin.H{"tokens": pair})
	})

	// Logout endpoint
	authGroup.POST("/logout", func(c *gin.Context) {
		if accessToken, err := c.Cookie("access_token"); err == nil && accessToken != "" {
			if claims, err := auth.ValidateAccessToken(accessToken, rdb); err == nil {
				_ = auth.RevokeAllUserTokens(claims.UserID, rdb)
			}
		}

		secure := cfg.GinMode == "release"
		c.SetCookie("access_token", "", -1, "/", "", secure, true)
		c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})
}
