package handlers

import "github.com/gin-gonic/gin"

// RegisterAPIRoutes mounts the authenticated REST API on api.
func RegisterAPIRoutes(api *gin.RouterGroup, profiles *ProfileHandler, users *UserHandler, rooms *RoomHandler) {
	api.POST("/auth/signup", profiles.Signup)
	api.GET("/auth/profile", profiles.GetProfile)
	api.PUT("/auth/profile", profiles.UpdateProfile)

	api.GET("/users/search", users.SearchUsers)
	api.GET("/users/online", users.OnlineUsers)
	api.GET("/users/:userId", users.GetUser)

	api.POST("/rooms", rooms.CreateRoom)
	api.GET("/rooms", rooms.ListRooms)
	api.GET("/rooms/:roomId", rooms.GetRoom)
	api.GET("/rooms/:roomId/messages", rooms.ListMessages)
	api.POST("/rooms/:roomId/members", rooms.AddMembers)
}
