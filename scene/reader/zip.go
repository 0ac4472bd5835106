package reader

import (
	"archive/zip"
	"fmt"
	"time"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/log"
	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/stream"
)

const (
	dataFile = "scene.bin"
)

type zipSceneReader struct {
	logger log.Logger
}

// Create a new zip scene reader
func newZipSceneReader() *zipSceneReader {
	return &zipSceneReader{
		logger: log.New("zip reader"),
	}
}

// Read scene definition from zip file.
func (p *zipSceneReader) Read(filename string, opts config.Options) (*scene.Scene, error) {
	p.logger.Noticef(`parsing compiled scene from "%s"`, filename)
	start := time.Now()

	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var sc *scene.Scene
	for _, f := range zr.File {
		switch f.Name {
		case dataFile:
		default:
			p.logger.Warningf("unknown file %s in scene zip file; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		sc, err = Decode(stream.NewDecoder(rc), opts)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zipSceneReader: failed to load %s: %w", f.Name, err)
		}
	}
	if sc == nil {
		return nil, ErrMissingData
	}

	p.logger.Noticef("loaded scene in %d ms", time.Since(start).Nanoseconds()/1000000)
	return sc, nil
}
