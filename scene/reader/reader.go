package reader

import (
	"errors"
	"os"

	"github.com/google/uuid"

	"github.com/Kai-Fu/KRender-sub000/config"
	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/stream"
)

var (
	ErrMissingData        = errors.New("reader: scene data not found in file")
	ErrUnsupportedVersion = errors.New("reader: unsupported scene format version")
	ErrSceneMismatch      = errors.New("reader: update record belongs to another scene")
)

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read scene definition from a file.
	Read(filename string, opts config.Options) (*scene.Scene, error)
}

// Read a saved scene. The returned scene is built and ready for queries; on
// failure no scene is returned.
func ReadScene(filename string, opts config.Options) (*scene.Scene, error) {
	return newZipSceneReader().Read(filename, opts)
}

// ApplyUpdates reads every update record in filename, checks that they were
// written for sc, applies them and rebuilds the affected instances. Either
// all records are applied or none.
func ApplyUpdates(sc *scene.Scene, filename string) (int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var updates []scene.InstanceUpdate
	dec := stream.NewDecoder(f)
	for !dec.AtEOF() {
		if err = dec.ExpectTag(scene.TagUpdate); err != nil {
			return 0, err
		}
		var id uuid.UUID
		if err = dec.Value(&id); err != nil {
			return 0, err
		}
		if id != sc.ID {
			return 0, ErrSceneMismatch
		}
		batch, err := stream.ReadSlice[scene.InstanceUpdate](dec, maxElements)
		if err != nil {
			return 0, err
		}
		updates = append(updates, batch...)
	}

	if err = sc.ApplyUpdates(updates); err != nil {
		return 0, err
	}
	seen := make(map[uint32]bool, len(updates))
	dirty := make([]uint32, 0, len(updates))
	for _, u := range updates {
		if !seen[u.Instance] {
			seen[u.Instance] = true
			dirty = append(dirty, u.Instance)
		}
	}
	if _, err = sc.BuildDirty(dirty, nil); err != nil {
		return 0, err
	}
	return len(updates), nil
}
