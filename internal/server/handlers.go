package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/imaging"
	"github.com/ironsheep/anpr-parking/internal/parking"
	"github.com/ironsheep/anpr-parking/internal/service"
	"github.com/ironsheep/anpr-parking/internal/store"
)

func (s *Server) register(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api/v1")
	{
		api.POST("/upload", s.upload)
		api.GET("/plates", s.listPlates)
		api.GET("/state", s.state)
		api.POST("/allocate", s.allocate)
		api.GET("/frame", s.frame)
	}
}

// plateView is one recognized plate in an upload response.
type plateView struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// notification is an entry or exit event in an upload response. Duration
// is a human-readable string and only present on exit.
type notification struct {
	Plate    string `json:"plate"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Spot     string `json:"parking_spot,omitempty"`
}

type allocateRequest struct {
	Plate string `json:"plate" binding:"required"`
}

func notificationsFor(events []anpr.PlateEvent) []notification {
	out := make([]notification, 0, len(events))
	for _, ev := range events {
		n := notification{Plate: ev.Plate, Status: string(ev.Status), Spot: ev.SpotID}
		if ev.Status == anpr.EventExit {
			n.Duration = ev.Duration.String()
		}
		out = append(out, n)
	}
	return out
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) upload(c *gin.Context) {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Header("X-Request-ID", requestID)

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("cannot read uploaded file"))
		return
	}
	defer f.Close()

	frame, err := imaging.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	res, err := s.svc.ProcessFrame(c.Request.Context(), frame)
	if err != nil {
		// Events committed before the failure still go back to the client.
		var extra gin.H
		if res != nil && len(res.Events) > 0 {
			extra = gin.H{"request_id": requestID, "notifications": notificationsFor(res.Events)}
		}
		s.handleErrorWith(c, err, extra)
		return
	}

	plates := make([]plateView, 0, len(res.Readings))
	for _, r := range res.Readings {
		plates = append(plates, plateView{Text: r.Text, Image: r.Snapshot})
	}
	notifications := notificationsFor(res.Events)

	s.log.Info().
		Str("request_id", requestID).
		Int("plates", len(plates)).
		Int("events", len(notifications)).
		Msg("Upload processed")

	c.JSON(http.StatusOK, gin.H{
		"request_id":    requestID,
		"plates":        plates,
		"notifications": notifications,
		"allocations":   res.Allocations,
	})
}

func (s *Server) listPlates(c *gin.Context) {
	state, err := s.svc.CurrentState(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored_plates": state.OpenRecords})
}

func (s *Server) state(c *gin.Context) {
	state, err := s.svc.CurrentState(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(state))
}

func (s *Server) allocate(c *gin.Context) {
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	alloc, err := s.svc.Allocate(c.Request.Context(), strings.TrimSpace(req.Plate), nil)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(alloc))
}

func (s *Server) frame(c *gin.Context) {
	img := s.svc.CurrentFrame()
	if img == nil {
		c.JSON(http.StatusNotFound, errorResponse("no frame processed yet"))
		return
	}
	data, err := imaging.EncodeJPEG(img, imaging.DefaultJPEGQuality)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (s *Server) handleError(c *gin.Context, err error) {
	s.handleErrorWith(c, err, nil)
}

// handleErrorWith maps err to a status code and merges extra into the body.
func (s *Server) handleErrorWith(c *gin.Context, err error, extra gin.H) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, parking.ErrNoSpotAvailable):
		status, message = http.StatusConflict, err.Error()
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
	}

	body := errorResponse(message)
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
