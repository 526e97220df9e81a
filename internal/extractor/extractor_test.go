package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}

func TestDetectFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/faces" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing multipart file: %v", err)
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part Content-Type = %q, want image/jpeg", ct)
		}

		json.NewEncoder(w).Encode(facesResponse{
			FacesCount: 1,
			Faces: []Face{{
				FaceIndex: 0,
				Dim:       4,
				Embedding: []float32{1, 0, 0, 0},
				BBox:      []float64{10, 20, 110, 140},
				DetScore:  0.97,
			}},
			Model: "buffalo_l",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	faces, err := c.DetectFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("got %d faces, want 1", len(faces))
	}
	if faces[0].DetScore != 0.97 || len(faces[0].Embedding) != 4 {
		t.Errorf("unexpected face payload: %+v", faces[0])
	}
}

func TestDetectFacesEmptyFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(facesResponse{FacesCount: 0, Faces: nil})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	faces, err := c.DetectFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("got %d faces, want 0", len(faces))
	}
}

func TestDetectFacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.DetectFaces(context.Background(), jpegHeader); err == nil {
		t.Error("DetectFaces succeeded against a failing server")
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy failed: %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0x01}, "application/octet-stream"},
		{"unknown", []byte{1, 2, 3, 4, 5, 6, 7, 8}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType = %q, want %q", got, tt.want)
			}
		})
	}
}
