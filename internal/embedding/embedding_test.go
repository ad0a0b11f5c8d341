package embedding

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMean(t *testing.T) {
	mean, err := Mean([][]float32{{1, 2}, {3, 4}, {5, 6}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mean[0] != 3 || mean[1] != 4 {
		t.Errorf("expected [3 4], got %v", mean)
	}

	if _, err := Mean(nil); err == nil {
		t.Error("expected error for no vectors")
	}
	if _, err := Mean([][]float32{{1, 2}, {1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestClient_DetectFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "\xff\xd8\xff\xe0 jpeg bytes" {
			t.Errorf("unexpected payload %q", data)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %s", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces_count":2,"model":"buffalo_l","faces":[
			{"face_index":0,"dim":3,"embedding":[0.1,0.2,0.3],"bbox":[1,2,3,4],"det_score":0.9},
			{"face_index":1,"dim":0,"embedding":[],"bbox":[],"det_score":0.2}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", 5*time.Second)
	faces, err := client.DetectFaces(context.Background(), []byte("\xff\xd8\xff\xe0 jpeg bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected faces without embeddings to be dropped, got %d", len(faces))
	}
	if faces[0].DetScore != 0.9 || len(faces[0].Embedding) != 3 {
		t.Errorf("unexpected face %+v", faces[0])
	}
}

func TestClient_ErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad image", http.StatusUnprocessableEntity, ErrUndecodable},
		{"server failure", http.StatusInternalServerError, ErrExtractorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second).DetectFaces(context.Background(), []byte("img"))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second)
	if err := client.Health(context.Background()); !errors.Is(err, ErrExtractorUnavailable) {
		t.Errorf("expected ErrExtractorUnavailable from health, got %v", err)
	}
	if _, err := client.DetectFaces(context.Background(), []byte("img")); !errors.Is(err, ErrExtractorUnavailable) {
		t.Errorf("expected ErrExtractorUnavailable, got %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := map[string]string{
		"\xff\xd8\xff\xe0xxxx":         "image/jpeg",
		"\x89PNG\r\n\x1a\n":            "image/png",
		"BMxxxxxxxx":                   "image/bmp",
		"RIFF\x00\x00\x00\x00WEBPVP8 ": "image/webp",
		"short":                        "application/octet-stream",
		"plain text, not an image":     "application/octet-stream",
	}
	for data, want := range tests {
		if got := DetectMIMEType([]byte(data)); got != want {
			t.Errorf("DetectMIMEType(%q) = %s, want %s", data, got, want)
		}
	}
}

func TestStaticExtractor(t *testing.T) {
	ex := NewStaticExtractor()
	ex.Set("a", []float32{1, 0}, []float32{0, 1})
	boom := errors.New("boom")
	ex.SetError("bad", boom)

	faces, err := ex.DetectFaces(context.Background(), []byte("a"))
	if err != nil || len(faces) != 2 {
		t.Errorf("expected 2 faces, got %d (%v)", len(faces), err)
	}
	if _, err := ex.DetectFaces(context.Background(), []byte("bad")); !errors.Is(err, boom) {
		t.Errorf("expected registered error, got %v", err)
	}
	faces, _ = ex.DetectFaces(context.Background(), []byte("unknown"))
	if len(faces) != 0 {
		t.Errorf("expected no faces for unknown content, got %d", len(faces))
	}
	if ex.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", ex.Calls())
	}
}
