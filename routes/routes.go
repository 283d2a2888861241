package routes

import (
	"time"

	"onlinelibrary_go/controllers"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/utils"
	"onlinelibrary_go/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes 设置路由，uploader为nil时不注册封面上传
func SetupRoutes(r *gin.Engine, uploader *utils.FileUploader) {
	// 应用全局中间件
	r.Use(middleware.CORSFromEnv())
	r.Use(middleware.Logger())
	r.Use(metrics.Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 本地存储的封面通过静态路由访问
	if uploader != nil {
		if local, ok := uploader.Store().(*utils.LocalStore); ok {
			r.Static("/uploads", local.Root())
		}
	}

	authController := controllers.NewAuthController()
	bookController := controllers.NewBookController(uploader)
	reviewController := controllers.NewReviewController()
	userController := controllers.NewUserController()
	friendController := controllers.NewFriendController()
	moderationController := controllers.NewModerationController()

	auth := middleware.AuthMiddleware()
	optionalAuth := middleware.OptionalAuth()

	api := r.Group("/api")
	{
		// ====== 认证路由 ======
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", middleware.RateLimit(20, time.Minute), authController.Register)
			authGroup.POST("/login", middleware.RateLimit(20, time.Minute), authController.Login)
			authGroup.POST("/refresh", authController.RefreshToken)
			authGroup.POST("/logout", auth, authController.Logout)
			authGroup.GET("/me", auth, authController.Me)
		}

		// ====== 书籍路由 ======
		books := api.Group("/books")
		{
			books.GET("", bookController.GetBooks)
			books.GET("/:isbn", optionalAuth, bookController.GetBook)
			books.POST("", auth, bookController.CreateBook)
			if uploader != nil {
				books.POST("/cover", auth, middleware.RateLimit(30, time.Hour), bookController.UploadCover)
				books.DELETE("/cover", auth, bookController.DeleteCover)
			}
			books.POST("/:isbn/buy", auth, bookController.BuyBook)
			books.PUT("/:isbn/rating", auth, bookController.RateBook)
			books.POST("/:isbn/reviews", auth, bookController.WriteReview)
			books.GET("/:isbn/recommend", auth, bookController.GetRecommendTargets)
			books.POST("/:isbn/recommend", auth, bookController.Recommend)
			books.POST("/:isbn/approve", auth, bookController.ApproveBook)
			books.POST("/:isbn/reject", auth, bookController.RejectBook)
			books.POST("/:isbn/remove", auth, bookController.RemoveBook)
		}

		// ====== 书评路由 ======
		reviews := api.Group("/reviews")
		{
			reviews.GET("/:id", optionalAuth, reviewController.GetReview)
			reviews.POST("/:id/vote", auth, reviewController.VoteReview)
			reviews.POST("/:id/comments", auth, reviewController.CommentReview)
			reviews.POST("/:id/report", auth, reviewController.ReportReview)
			reviews.DELETE("/:id", auth, reviewController.DeleteReview)
		}

		// ====== 用户路由 ======
		users := api.Group("/users")
		{
			users.PUT("/me", auth, userController.UpdateUserProfile)
			users.POST("/me/topup", auth, userController.TopUp)
			users.POST("/me/publisher-request", auth, userController.RequestPublisher)

			users.GET("/:username", optionalAuth, userController.GetUserProfile)
			users.DELETE("/:username", auth, userController.DeleteUser)
			users.GET("/:username/books", optionalAuth, userController.GetOwnedBooks)
			users.GET("/:username/published", optionalAuth, userController.GetPublishedBooks)
			users.GET("/:username/friends", auth, userController.GetFriends)
			users.GET("/:username/friend-requests", auth, userController.GetFriendRequests)
			users.GET("/:username/recommendations", auth, userController.GetRecommendations)

			// 好友关系，username为对方
			users.POST("/:username/friend-request", auth, friendController.SendRequest)
			users.POST("/:username/accept", auth, friendController.Accept)
			users.POST("/:username/reject", auth, friendController.Reject)
			users.POST("/:username/cancel", auth, friendController.Cancel)
			users.POST("/:username/unfriend", auth, friendController.Unfriend)

			// 管理员操作
			users.POST("/:username/block", auth, moderationController.BlockUser)
			users.POST("/:username/unblock", auth, moderationController.UnblockUser)
			users.POST("/:username/approve-publisher", auth, moderationController.ApprovePublisher)
			users.POST("/:username/reject-publisher", auth, moderationController.RejectPublisher)
		}

		// ====== 审核队列 ======
		moderation := api.Group("/moderation", auth)
		{
			moderation.GET("/publishers", moderationController.GetPendingPublishers)
			moderation.GET("/publications", moderationController.GetPendingPublications)
			moderation.GET("/reports", moderationController.GetReportedReviews)
			moderation.GET("/queues", moderationController.GetQueueSizes)
		}
	}

	// ====== WebSocket路由 ======
	r.GET("/ws", auth, websocket.HandleConnection)
}
