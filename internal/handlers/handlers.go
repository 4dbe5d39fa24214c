package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/auth"
	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/live"
	"github.com/example/card-scanner/internal/repository"
	"github.com/example/card-scanner/internal/screen"
)

// MaxUploadSize caps the size of a picked image.
const MaxUploadSize = 10 << 20

// HistoryReader is the read side of scan history.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]*repository.ScanRecord, error)
	Summary(ctx context.Context) (*repository.Summary, error)
}

// Deps are the collaborators the routes need. History may be nil.
type Deps struct {
	Controller *screen.Controller
	Alerts     *screen.AlertBoard
	Hub        *live.Hub
	History    HistoryReader
	GalleryDir string
	StagingDir string
	Logger     *zap.Logger
}

type screenResponse struct {
	View   screen.View    `json:"view"`
	Alerts []screen.Alert `json:"alerts"`
}

type galleryRequest struct {
	Name string `json:"name" binding:"required"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware,
// when non-nil, guards the action routes, which then also require the scope
// matching the action.
func RegisterRoutes(router *gin.Engine, deps Deps, authMiddleware gin.HandlerFunc) {
	logger := deps.Logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/screen", func(c *gin.Context) {
		c.JSON(http.StatusOK, respond(deps))
	})

	router.GET("/ws", func(c *gin.Context) {
		deps.Hub.Serve(c.Writer, c.Request, func() *live.Message {
			return &live.Message{Type: "view", Payload: deps.Controller.View()}
		})
	})

	actions := router.Group("/")
	requireScope := func(string) gin.HandlerFunc { return func(c *gin.Context) { c.Next() } }
	if authMiddleware != nil {
		actions.Use(authMiddleware)
		requireScope = auth.RequireScope
	}

	actions.POST("/pick", requireScope(auth.ScopeScan), func(c *gin.Context) {
		mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if mediaType == "multipart/form-data" {
			pickUpload(c, deps, logger)
			return
		}

		var req galleryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart image or JSON gallery name is required"})
			return
		}
		logAction(c, logger, "pick", zap.String("gallery_name", req.Name))
		deps.Controller.Pick(c.Request.Context(), capture.GalleryPicker{Dir: deps.GalleryDir, Name: req.Name})
		c.JSON(http.StatusOK, respond(deps))
	})

	actions.POST("/capture", requireScope(auth.ScopeScan), func(c *gin.Context) {
		logAction(c, logger, "capture")
		deps.Controller.Capture(c.Request.Context())
		c.JSON(http.StatusOK, respond(deps))
	})

	actions.POST("/camera/refresh", requireScope(auth.ScopeCamera), func(c *gin.Context) {
		deps.Controller.RefreshCamera(c.Request.Context())
		c.JSON(http.StatusOK, respond(deps))
	})

	router.GET("/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alerts": deps.Alerts.Pending()})
	})

	router.POST("/alerts/:id/ack", func(c *gin.Context) {
		if err := deps.Alerts.Acknowledge(c.Param("id")); err != nil {
			if errors.Is(err, screen.ErrAlertNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	router.GET("/scans", func(c *gin.Context) {
		if deps.History == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan history is disabled"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		records, err := deps.History.ListRecent(c.Request.Context(), limit)
		if err != nil {
			logger.Error("failed to list scans", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scans"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scans": records})
	})

	router.GET("/scans/summary", func(c *gin.Context) {
		if deps.History == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan history is disabled"})
			return
		}
		summary, err := deps.History.Summary(c.Request.Context())
		if err != nil {
			logger.Error("failed to summarise scans", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarise scans"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func pickUpload(c *gin.Context, deps Deps, logger *zap.Logger) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	if declared := file.Header.Get("Content-Type"); declared != "" &&
		!strings.HasPrefix(declared, "image/") && declared != "application/octet-stream" {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image content type required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	logAction(c, logger, "pick", zap.String("upload_name", file.Filename), zap.Int64("size", file.Size))
	deps.Controller.Pick(c.Request.Context(), capture.UploadPicker{Source: src, Dir: deps.StagingDir})
	c.JSON(http.StatusOK, respond(deps))
}

func respond(deps Deps) screenResponse {
	return screenResponse{View: deps.Controller.View(), Alerts: deps.Alerts.Pending()}
}

func logAction(c *gin.Context, logger *zap.Logger, action string, fields ...zap.Field) {
	if subject, ok := auth.GetSubject(c.Request.Context()); ok {
		fields = append(fields, zap.String("subject", subject))
	}
	logger.Info("screen action", append(fields, zap.String("action", action))...)
}
