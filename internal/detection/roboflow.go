package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/imaging"
)

// RoboflowConfig configures a hosted object-detection model.
type RoboflowConfig struct {
	// Endpoint is the model URL, e.g. https://detect.roboflow.com/<project>/<version>.
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`

	// Confidence is sent to the service as a 0-100 percentage filter.
	Confidence float64 `mapstructure:"confidence"`

	// Classes maps model class names to box classes. Unmapped names are
	// dropped. An empty map treats every prediction as a plate.
	Classes map[string]anpr.ClassLabel `mapstructure:"classes"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// Roboflow detects objects by posting frames to a hosted inference API.
type Roboflow struct {
	cfg    RoboflowConfig
	client *http.Client
}

// roboflowPrediction is one entry of the inference response.
type roboflowPrediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

type roboflowResponse struct {
	Predictions []roboflowPrediction `json:"predictions"`
}

// NewRoboflow creates a client for the hosted model.
func NewRoboflow(cfg RoboflowConfig) *Roboflow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = DefaultMinConfidence * 100
	}
	return &Roboflow{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Detect uploads the frame as a base64 JPEG and converts the predictions.
//
// Parameters:
//   - ctx: Cancels the HTTP request.
//   - frame: Full frame; prediction coordinates refer to its pixels.
//
// Returns:
//   - []anpr.DetectionBox: Center-format boxes with confidence in 0..1.
//   - error: Non-nil on encoding, transport, non-200 status or a
//     malformed response.
func (r *Roboflow) Detect(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error) {
	payload, err := imaging.EncodeJPEGBase64(frame)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(r.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid detector endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", r.cfg.APIKey)
	q.Set("confidence", strconv.FormatFloat(r.cfg.Confidence, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create detector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result roboflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	boxes := make([]anpr.DetectionBox, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		class, ok := r.classFor(p.Class)
		if !ok {
			continue
		}
		boxes = append(boxes, anpr.DetectionBox{
			CenterX:    p.X,
			CenterY:    p.Y,
			Width:      p.Width,
			Height:     p.Height,
			Confidence: p.Confidence,
			Class:      class,
		})
	}
	return boxes, nil
}

func (r *Roboflow) classFor(name string) (anpr.ClassLabel, bool) {
	if len(r.cfg.Classes) == 0 {
		return anpr.ClassPlate, true
	}
	class, ok := r.cfg.Classes[strings.ToLower(name)]
	return class, ok
}
