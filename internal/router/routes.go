package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/farmwise/internal/handler"
	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/model"
)

// RegisterUsers mounts /users.  Registration, login, token refresh and the
// farmer directory are public; everything else needs an access token.
func RegisterUsers(api *echo.Group, h *handler.UserHandler, secret string) {
	g := api.Group("/users")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh-token", h.RefreshToken)
	g.GET("/getallfarmers", h.ListFarmers)

	auth := middleware.JWTAuth(secret)
	g.POST("/logout", h.Logout, auth)
	g.POST("/change-password", h.ChangePassword, auth)
	g.GET("/current-user", h.CurrentUser, auth)
	g.PATCH("/update-account", h.UpdateAccount, auth)
	g.PATCH("/profile-image", h.UpdateProfileImage, auth)
}

// RegisterBlogs mounts /blog.  Reads are public; edits and deletes are
// further limited to the author or an admin inside the handler.
func RegisterBlogs(api *echo.Group, h *handler.BlogHandler, secret string) {
	g := api.Group("/blog")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/comments", h.Comments)

	auth := middleware.JWTAuth(secret)
	g.POST("", h.Create, auth)
	g.PATCH("/:id", h.Update, auth)
	g.DELETE("/:id", h.Delete, auth)
	g.PATCH("/:id/like", h.Like, auth)
	g.POST("/:id/comment", h.AddComment, auth)
}

func RegisterMessages(api *echo.Group, h *handler.MessageHandler, secret string) {
	g := api.Group("/messages", middleware.JWTAuth(secret))
	g.POST("/send", h.Send)
	g.GET("/get", h.List)
}

// RegisterExperts mounts /expert.  The listing is cached; approval is
// admin only.
func RegisterExperts(api *echo.Group, h *handler.ExpertHandler, secret string, cache echo.MiddlewareFunc) {
	g := api.Group("/expert")
	g.GET("", h.List, cache)
	g.GET("/:id", h.Bookings)

	auth := middleware.JWTAuth(secret)
	g.POST("/:id/verify", h.SubmitVerification, auth)
	g.PATCH("/admin/verify/:id", h.SetVerified, auth, middleware.RequireRole(model.UserTypeAdmin))
}

// RegisterBookings mounts /booking; every route needs an access token and
// only farmers may apply.
func RegisterBookings(api *echo.Group, h *handler.BookingHandler, secret string) {
	g := api.Group("/booking", middleware.JWTAuth(secret))
	g.POST("/apply", h.Apply, middleware.RequireRole(model.UserTypeFarmer))
	g.GET("", h.ListAll)
	g.GET("/", h.ListAll)
	g.GET("/accepted-applications", h.Accepted)
	g.GET("/:id", h.ListByFarmer)
	g.PUT("/accept/:bookingId", h.Accept)
}

func RegisterNews(api *echo.Group, h *handler.NewsHandler, cache echo.MiddlewareFunc) {
	g := api.Group("/news")
	g.GET("", h.Everything, cache)
	g.GET("/headlines", h.Headlines, cache)
}
