package mediatypes

import "testing"

func TestExt(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/a/b/photo.JPG", ".jpg"},
		{"image.tar.PNG", ".png"},
		{"noext", ""},
		{"/dir.d/file", ""},
	}

	for _, tt := range tests {
		if got := Ext(tt.path); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		ext      string
		withVips bool
		want     bool
	}{
		{".jpg", false, true},
		{".webp", false, true},
		{".tif", false, true},
		{".heic", false, false},
		{".heic", true, true},
		{".svg", true, true},
		{".mp4", true, false},
		{".txt", false, false},
		{"", true, false},
	}

	for _, tt := range tests {
		if got := IsSupported(tt.ext, tt.withVips); got != tt.want {
			t.Errorf("IsSupported(%q, %v) = %v, want %v", tt.ext, tt.withVips, got, tt.want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		ext, want string
	}{
		{".jpg", "image/jpeg"},
		{".png", "image/png"},
		{".heif", "image/heif"},
		{".xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := GetMimeType(tt.ext); got != tt.want {
			t.Errorf("GetMimeType(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestFormatMimeType(t *testing.T) {
	if got := FormatMimeType("png"); got != "image/png" {
		t.Errorf("FormatMimeType(png) = %q", got)
	}
	if got := FormatMimeType("jpeg"); got != "image/jpeg" {
		t.Errorf("FormatMimeType(jpeg) = %q", got)
	}
	if got := FormatMimeType("text"); got != "application/octet-stream" {
		t.Errorf("FormatMimeType(text) = %q", got)
	}
}

func TestEveryExtensionHasMimeType(t *testing.T) {
	for ext := range ImageExtensions {
		if _, ok := MimeTypes[ext]; !ok {
			t.Errorf("image extension %q has no MIME type", ext)
		}
	}
	for ext := range VipsExtensions {
		if _, ok := MimeTypes[ext]; !ok {
			t.Errorf("vips extension %q has no MIME type", ext)
		}
	}
}
