package util

import (
	"os"
	"path/filepath"
	"strings"
)

// SniffVideoMIME detects a container format from leading bytes.
func SniffVideoMIME(b []byte) string {
	// MP4/MOV: "ftyp" box at offset 4
	if len(b) >= 8 && b[4] == 'f' && b[5] == 't' && b[6] == 'y' && b[7] == 'p' {
		return "video/mp4"
	}
	// EBML header (WebM/Matroska)
	if len(b) >= 4 && b[0] == 0x1A && b[1] == 0x45 && b[2] == 0xDF && b[3] == 0xA3 {
		return "video/webm"
	}
	return ""
}

// VideoMIMEForPath picks a MIME type by extension, falling back to sniffing
// the file header. Defaults to video/mp4 (the downloader's target format).
func VideoMIMEForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	}
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		head := make([]byte, 16)
		if n, _ := f.Read(head); n > 0 {
			if m := SniffVideoMIME(head[:n]); m != "" {
				return m
			}
		}
	}
	return "video/mp4"
}
