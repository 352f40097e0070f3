package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrBadCamera = errors.New("camera id must be a number from 0 to 9")

const maxCamera = 9

// CameraStore serves the latest snapshot written by each camera as <dir>/<id>.jpg.
type CameraStore struct {
	dir string
}

func NewCameraStore(dir string) *CameraStore {
	return &CameraStore{dir: dir}
}

func (s *CameraStore) Snapshot(id string) ([]byte, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n < 0 || n > maxCamera {
		return nil, ErrBadCamera
	}
	data, err := os.ReadFile(filepath.Join(s.dir, fmt.Sprintf("%d.jpg", n)))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %d: %w", n, err)
	}
	return data, nil
}
