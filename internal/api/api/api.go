package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"afisha/cmd/middleware"
	"afisha/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	users := app.Group("/users/:userId")

	users.POST("/events", r.Service.CreateEvent)
	users.GET("/events/:eventId", r.Service.GetUserEvent)
	users.PATCH("/events/:eventId", r.Service.UpdateEventByUser)
	users.GET("/events/:eventId/requests", r.Service.GetEventRequests)
	users.PATCH("/events/:eventId/requests", r.Service.DecideRequests)

	users.GET("/requests", r.Service.GetUserRequests)
	users.POST("/requests", r.Service.SubmitRequest)
	users.PATCH("/requests/:requestId/cancel", r.Service.CancelRequest)

	app.PATCH("/admin/events/:eventId", r.Service.UpdateEventByAdmin)

	app.GET("/events/:id", r.Service.GetPublicEvent)

	return app
}
