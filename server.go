package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/middlewares"
	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"bitbucket.org/eggnest/eggs_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	r := gin.Default()
	r.Use(cors.New(corsConfig()))
	r.Use(middlewares.AuthMiddleware())

	registerRoutes(r, logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Start listening first; DB/redis connect with retry in the background so
	// a slow dependency does not block startup.
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	stopSweep := make(chan struct{})
	workflow.StartTokenCleanupSweep(logger, sweepInterval(), stopSweep)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stopSweep)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

func sweepInterval() time.Duration {
	minutes, err := strconv.Atoi(os.Getenv("TOKEN_SWEEP_MINUTES"))
	if err != nil || minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

func corsConfig() cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	return corsCfg
}

func registerRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/signup", func(c *gin.Context) {
		var input models.NewUser
		if !bindJSON(c, &input) {
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, "signup", err)
			return
		}
		c.JSON(http.StatusCreated, user)
	})

	r.POST("/signin", func(c *gin.Context) {
		var input models.SignInInput
		if !bindJSON(c, &input) {
			return
		}
		payload, err := models.SignIn(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, "signin", err)
			return
		}
		c.JSON(http.StatusOK, payload)
	})

	r.POST("/token/refresh", func(c *gin.Context) {
		var input struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if !bindJSON(c, &input) {
			return
		}
		payload, err := models.RefreshAccessToken(c.Request.Context(), input.RefreshToken)
		if err != nil {
			respondError(c, logger, "token/refresh", err)
			return
		}
		c.JSON(http.StatusOK, payload)
	})

	authed := r.Group("/", middlewares.RequireAuth())

	authed.GET("/profile", func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		user, err := models.GetUser(c.Request.Context(), userId)
		if err != nil {
			respondError(c, logger, "profile", err)
			return
		}
		c.JSON(http.StatusOK, user)
	})

	authed.PUT("/profile", func(c *gin.Context) {
		var input models.UpdateProfileInput
		if !bindJSON(c, &input) {
			return
		}
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		user, err := models.UpdateProfile(c.Request.Context(), userId, &input)
		if err != nil {
			respondError(c, logger, "profile", err)
			return
		}
		c.JSON(http.StatusOK, user)
	})

	authed.POST("/rooms", func(c *gin.Context) {
		var input models.NewRoom
		if !bindJSON(c, &input) {
			return
		}
		room, err := models.CreateRoom(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, "rooms", err)
			return
		}
		c.JSON(http.StatusCreated, room)
	})

	authed.GET("/rooms", func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		rooms, err := models.ListRoomsForUser(c.Request.Context(), userId)
		if err != nil {
			respondError(c, logger, "rooms", err)
			return
		}
		c.JSON(http.StatusOK, rooms)
	})

	authed.POST("/rooms/join", func(c *gin.Context) {
		var input models.JoinRoomInput
		if !bindJSON(c, &input) {
			return
		}
		room, err := models.JoinRoomByCode(c.Request.Context(), &input)
		if err != nil {
			respondError(c, logger, "rooms/join", err)
			return
		}
		c.JSON(http.StatusOK, room)
	})

	room := authed.Group("/rooms/:roomId", middlewares.RoomMemberMiddleware())

	room.GET("/members", func(c *gin.Context) {
		roomId, _ := utils.GetRoomIdFromContext(c.Request.Context())
		members, err := models.ListRoomMembers(c.Request.Context(), roomId)
		if err != nil {
			respondError(c, logger, "members", err)
			return
		}
		c.JSON(http.StatusOK, members)
	})

	room.GET("/containers", func(c *gin.Context) {
		roomId, _ := utils.GetRoomIdFromContext(c.Request.Context())
		containers, err := models.ListContainers(c.Request.Context(), roomId)
		if err != nil {
			respondError(c, logger, "containers", err)
			return
		}
		c.JSON(http.StatusOK, containers)
	})

	room.GET("/summary", func(c *gin.Context) {
		roomId, _ := utils.GetRoomIdFromContext(c.Request.Context())
		summary, err := models.GetRoomStockSummary(c.Request.Context(), roomId)
		if err != nil {
			respondError(c, logger, "summary", err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	room.GET("/orders", func(c *gin.Context) {
		roomId, _ := utils.GetRoomIdFromContext(c.Request.Context())
		orders, err := models.ListOrders(c.Request.Context(), roomId)
		if err != nil {
			respondError(c, logger, "orders", err)
			return
		}
		c.JSON(http.StatusOK, orders)
	})

	room.POST("/stock", func(c *gin.Context) {
		var input workflow.NewStockOrder
		if !bindJSON(c, &input) {
			return
		}
		order, container, err := workflow.CreateStockOrder(c.Request.Context(), logger, &input)
		if err != nil {
			respondError(c, logger, "stock", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order": order, "container": container})
	})

	room.POST("/consume", func(c *gin.Context) {
		var input workflow.NewConsumeOrder
		if !bindJSON(c, &input) {
			return
		}
		order, err := workflow.CreateConsumeOrder(c.Request.Context(), logger, &input)
		if err != nil {
			respondError(c, logger, "consume", err)
			return
		}
		c.JSON(http.StatusCreated, order)
	})

	room.POST("/leave", func(c *gin.Context) {
		roomId, _ := utils.GetRoomIdFromContext(c.Request.Context())
		if err := models.LeaveRoom(c.Request.Context(), roomId); err != nil {
			respondError(c, logger, "leave", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "left"})
	})

	room.POST("/archive", func(c *gin.Context) {
		roomId, _ := utils.GetRoomIdFromContext(c.Request.Context())
		archived, err := models.ArchiveRoom(c.Request.Context(), roomId)
		if err != nil {
			respondError(c, logger, "archive", err)
			return
		}
		c.JSON(http.StatusOK, archived)
	})
}

func bindJSON(c *gin.Context, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return false
	}
	return true
}

// respondError maps the domain error taxonomy onto HTTP statuses. Internal
// invariant violations are logged and surfaced as opaque 500s.
func respondError(c *gin.Context, logger *logrus.Logger, route string, err error) {
	var insufficient *utils.InsufficientStockError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "insufficient stock",
			"requested": insufficient.Requested,
			"shortfall": insufficient.Shortfall,
		})
		return
	}
	if utils.IsInvalidRequest(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if utils.IsConcurrencyConflict(err) {
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update conflict, please retry"})
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	config.LogError(logger, "server.go", "respondError", route, nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
