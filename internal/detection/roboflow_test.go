package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

func TestRoboflow_Detect(t *testing.T) {
	var gotKey, gotConfidence string
	var bodyOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		gotKey = r.URL.Query().Get("api_key")
		gotConfidence = r.URL.Query().Get("confidence")

		body, _ := io.ReadAll(r.Body)
		_, err := base64.StdEncoding.DecodeString(string(body))
		bodyOK = err == nil && len(body) > 0

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"predictions":[
			{"x":100,"y":50,"width":80,"height":20,"confidence":0.91,"class":"License_Plate"},
			{"x":300,"y":200,"width":120,"height":240,"confidence":0.77,"class":"free"},
			{"x":10,"y":10,"width":5,"height":5,"confidence":0.5,"class":"pedestrian"}
		]}`)
	}))
	defer srv.Close()

	det := NewRoboflow(RoboflowConfig{
		Endpoint: srv.URL + "/license-plate/11",
		APIKey:   "secret",
		Classes: map[string]anpr.ClassLabel{
			"license_plate": anpr.ClassPlate,
			"free":          anpr.ClassFree,
		},
	})

	boxes, err := det.Detect(context.Background(), createTestImage(400, 300, color.White))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if gotKey != "secret" {
		t.Errorf("api_key: got %q, want secret", gotKey)
	}
	if gotConfidence != "40" {
		t.Errorf("confidence: got %q, want 40", gotConfidence)
	}
	if !bodyOK {
		t.Error("request body is not base64 image data")
	}

	if len(boxes) != 2 {
		t.Fatalf("boxes: got %d, want 2 (unmapped class dropped)", len(boxes))
	}
	want := anpr.DetectionBox{CenterX: 100, CenterY: 50, Width: 80, Height: 20, Confidence: 0.91, Class: anpr.ClassPlate}
	if boxes[0] != want {
		t.Errorf("first box: got %+v, want %+v", boxes[0], want)
	}
	if boxes[1].Class != anpr.ClassFree {
		t.Errorf("second box class: got %s, want free", boxes[1].Class)
	}
}

func TestRoboflow_DefaultClassIsPlate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"predictions":[{"x":1,"y":2,"width":3,"height":4,"confidence":0.5,"class":"anything"}]}`)
	}))
	defer srv.Close()

	boxes, err := NewRoboflow(RoboflowConfig{Endpoint: srv.URL}).Detect(context.Background(), createTestImage(20, 20, color.White))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 1 || boxes[0].Class != anpr.ClassPlate {
		t.Errorf("boxes: got %+v, want one plate", boxes)
	}
}

func TestRoboflow_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "invalid api key", http.StatusForbidden)
			},
			want: "status 403",
		},
		{
			name: "malformed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"predictions":`)
			},
			want: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewRoboflow(RoboflowConfig{Endpoint: srv.URL}).Detect(context.Background(), createTestImage(20, 20, color.White))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error: got %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRoboflow_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	det := NewRoboflow(RoboflowConfig{Endpoint: srv.URL, Timeout: 20 * time.Millisecond})
	if _, err := det.Detect(context.Background(), createTestImage(20, 20, color.White)); err == nil {
		t.Error("Detect should fail when the service times out")
	}
}
