package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter assemble les routes du service. Tout sauf /health passe par
// l'authentification JWT.
func SetupRouter(handlers *Handlers, jwtSecretKey string) *gin.Engine {
	r := gin.Default()

	r.Use(CORSMiddleware())
	r.Use(SecurityHeadersMiddleware())

	r.GET("/health", handlers.Health)

	authenticated := r.Group("/")
	authenticated.Use(JWTAuthMiddleware(jwtSecretKey))
	{
		api := authenticated.Group("/api/v1")
		{
			api.POST("/jobs", handlers.CreateJob)
			api.GET("/jobs", handlers.ListJobs)
			api.GET("/jobs/:id", handlers.GetJob)
		}

		speech := authenticated.Group("/speech")
		{
			speech.POST("", handlers.CreateSpeech)
			speech.GET("/:id", handlers.GetSpeech)
			speech.DELETE("/:id", handlers.DeleteSpeech)
			speech.PUT("/:id/video", handlers.UpdateSpeechVideo)
			speech.PUT("/:id/document", handlers.UpdateSpeechDocument)
			speech.POST("/:id/feedback", handlers.SpeechFeedback)
		}

		question := authenticated.Group("/question")
		{
			question.GET("/:id", handlers.GetQuestionsForSpeech)
			question.POST("/:id/answer", handlers.SubmitQuestionAnswer)
		}

		authenticated.GET("/stage/:id", handlers.GetStage)
	}

	return r
}
