package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stitchbook/api/internal/auth"
	"github.com/stitchbook/api/internal/handler"
	"github.com/stitchbook/api/internal/media"
)

// doUpload posts content as the multipart "file" field.
func doUpload(t *testing.T, router http.Handler, path, filename, content string, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	token, err := auth.GenerateToken(testSecret, claims.UserID, claims.CompanyID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func setupMediaRouter() (*chi.Mux, *media.MemoryStore) {
	store := media.NewMemoryStore("http://media.test")
	h := handler.NewMediaHandler(store)
	return setupCompanyRouter(func(r chi.Router) {
		r.Route("/media", h.RegisterRoutes)
	}), store
}

func TestMediaUpload(t *testing.T) {
	router, store := setupMediaRouter()
	claims := ownerClaims()

	tests := []struct {
		filename    string
		kind        string
		contentType string
	}{
		{"neckline.JPG", "images", "image/jpeg"},
		{"fitting-note.m4a", "audio", "audio/mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			rr := doUpload(t, router, companyPath(claims, "/media"), tt.filename, "data", claims)
			if rr.Code != http.StatusCreated {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
			}

			resp := decodeResponse(t, rr)
			key := resp["key"].(string)
			if !media.OwnedBy(key, claims.CompanyID) || !strings.Contains(key, "/"+tt.kind+"/") {
				t.Errorf("key: got %q", key)
			}
			if resp["kind"] != tt.kind || resp["content_type"] != tt.contentType || resp["size"] != float64(4) {
				t.Errorf("upload: got %v", resp)
			}
			if resp["url"] != "http://media.test/"+key {
				t.Errorf("url: got %v", resp["url"])
			}
			if !store.Exists(key) {
				t.Error("upload was not stored")
			}
		})
	}
}

func TestMediaUploadRejected(t *testing.T) {
	router, _ := setupMediaRouter()
	claims := ownerClaims()

	tests := []struct {
		name     string
		filename string
		content  string
		code     string
	}{
		{"wrong format", "measurements.pdf", "data", "INVALID_FILE_FORMAT"},
		{"empty file", "blank.png", "", "EMPTY_FILE"},
		{"missing file", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doUpload(t, router, companyPath(claims, "/media"), tt.filename, tt.content, claims)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
			if tt.code != "" {
				if got := decodeResponse(t, rr)["code"]; got != tt.code {
					t.Errorf("code: got %v, want %s", got, tt.code)
				}
			}
		})
	}
}

func TestMediaURLAndDelete(t *testing.T) {
	router, store := setupMediaRouter()
	claims := ownerClaims()
	key := media.Key(claims.CompanyID, media.KindImage, "ref.png")
	if err := store.Put(context.Background(), key, strings.NewReader("png"), 3, "image/png"); err != nil {
		t.Fatalf("seed media: %v", err)
	}
	query := "?key=" + url.QueryEscape(key)

	rr := doAuthRequest(t, router, "GET", companyPath(claims, "/media/url"+query), nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("url: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got := decodeResponse(t, rr)["url"]; got != "http://media.test/"+key {
		t.Errorf("url: got %v", got)
	}

	rr = doAuthRequest(t, router, "DELETE", companyPath(claims, "/media"+query), nil, claims)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if store.Exists(key) {
		t.Error("media should be deleted")
	}
}

func TestMediaForeignKey(t *testing.T) {
	router, store := setupMediaRouter()
	claims := ownerClaims()
	foreign := media.Key(uuid.New(), media.KindImage, "theirs.png")
	if err := store.Put(context.Background(), foreign, strings.NewReader("png"), 3, "image/png"); err != nil {
		t.Fatalf("seed media: %v", err)
	}
	query := "?key=" + url.QueryEscape(foreign)

	for _, method := range []string{"GET", "DELETE"} {
		path := companyPath(claims, "/media"+query)
		if method == "GET" {
			path = companyPath(claims, "/media/url"+query)
		}
		rr := doAuthRequest(t, router, method, path, nil, claims)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: got %d, want %d", method, rr.Code, http.StatusForbidden)
		}
	}
	if !store.Exists(foreign) {
		t.Error("foreign media must not be deleted")
	}

	rr := doAuthRequest(t, router, "GET", companyPath(claims, "/media/url"), nil, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing key: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
