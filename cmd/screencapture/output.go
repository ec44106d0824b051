package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"screencapture/internal/artifact"
)

// writeArtifact 把原图与缩略图写到 dir，并向 w 输出 JSON 元数据
func writeArtifact(w io.Writer, dir string, art artifact.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	base := fmt.Sprintf("%s-%d", art.Kind, art.ID)
	full := filepath.Join(dir, base+".jpg")
	thumb := filepath.Join(dir, base+"-thumb.jpg")
	if err := os.WriteFile(full, art.Image.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := os.WriteFile(thumb, art.Thumbnail.Data, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	out := struct {
		artifact.Artifact
		ImagePath     string `json:"image_path"`
		ThumbnailPath string `json:"thumbnail_path"`
	}{art, full, thumb}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printWindow(id uint32, ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no window found")
	}
	fmt.Println(id)
	return nil
}
