package writer

import (
	"os"

	"github.com/google/uuid"

	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/stream"
)

// The Writer interface is implemented by all scene writers.
type Writer interface {
	// Write scene definition
	Write(*scene.Scene) error
}

// Write a built scene to a compressed file.
func WriteScene(sc *scene.Scene, filename string) error {
	writer := newZipSceneWriter(filename)
	return writer.Write(sc)
}

// AppendUpdate appends a transform update record for the scene identified
// by sceneID to filename, creating the file if needed.
func AppendUpdate(filename string, sceneID uuid.UUID, updates []scene.InstanceUpdate) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := stream.NewEncoder(f)
	enc.Tag(scene.TagUpdate)
	enc.Value(sceneID)
	stream.WriteSlice(enc, updates)
	if err = enc.Flush(); err != nil {
		return err
	}
	return f.Close()
}
