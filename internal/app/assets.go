package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInvalidArguments is returned when an asset path or file name is missing.
var ErrInvalidArguments = errors.New("asset path or file name not provided")

// PrepareAsset copies <AssetRoot>/<assetPath> to <FilesDir>/<fileName> and
// returns the absolute destination path. In bypass mode nothing is copied
// and the destination path is returned as is.
func (a *App) PrepareAsset(assetPath, fileName string) (string, error) {
	if assetPath == "" || fileName == "" {
		return "", ErrInvalidArguments
	}
	if fileName != filepath.Base(fileName) {
		return "", fmt.Errorf("%w: file name %q must not contain a directory", ErrInvalidArguments, fileName)
	}

	dest, err := filepath.Abs(filepath.Join(a.config.FilesDir, fileName))
	if err != nil {
		return "", err
	}

	if a.Mode() {
		return dest, nil
	}

	src := filepath.Join(a.config.AssetRoot, filepath.Clean("/"+assetPath))
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("prepare asset %s: %w", assetPath, err)
	}

	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
