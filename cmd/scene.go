package cmd

import (
	"errors"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli"

	"github.com/Kai-Fu/KRender-sub000/geom"
	"github.com/Kai-Fu/KRender-sub000/scene"
	"github.com/Kai-Fu/KRender-sub000/scene/reader"
	"github.com/Kai-Fu/KRender-sub000/scene/writer"
	"github.com/Kai-Fu/KRender-sub000/types"
)

// InfoFlags lists the flags accepted by ShowSceneInfo.
var InfoFlags = append([]cli.Flag{
	cli.StringFlag{
		Name:  "updates, u",
		Usage: "apply the update records in this file before printing",
	},
}, buildFlags...)

// UpdateFlags lists the flags accepted by AppendUpdate.
var UpdateFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "instance, i",
		Value: -1,
		Usage: "id of the instance to move",
	},
	cli.StringFlag{
		Name:  "translate",
		Value: "0,0,0",
		Usage: "start translation as x,y,z",
	},
	cli.StringFlag{
		Name:  "end-translate",
		Usage: "end translation as x,y,z; the instance is static if omitted",
	},
	cli.StringFlag{
		Name:  "end-rotate",
		Usage: "end rotation as axis x,y,z,angle in degrees",
	},
}

func openScene(ctx *cli.Context) (*scene.Scene, error) {
	if ctx.NArg() < 1 {
		return nil, errors.New("missing compiled scene zip file")
	}
	sceneFile := ctx.Args().First()
	if !strings.HasSuffix(sceneFile, ".zip") {
		return nil, errors.New("only compiled scene files with a .zip extension are supported")
	}

	opts, err := loadOptions(ctx)
	if err != nil {
		return nil, err
	}
	return reader.ReadScene(sceneFile, opts)
}

// Display compiled scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	sc, err := openScene(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	if file := ctx.String("updates"); file != "" {
		n, err := reader.ApplyUpdates(sc, file)
		if err != nil {
			return err
		}
		logger.Noticef("applied %d instance updates from %s", n, file)
	}

	logger.Noticef("scene %s bounds: %v", sc.ID, sc.Bounds())
	logger.Noticef("scene information:\n%s", sc.Stats())
	return nil
}

// AppendUpdate records a new placement for one instance of a compiled
// scene without rewriting the scene file.
func AppendUpdate(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() != 2 {
		return errors.New("expected a compiled scene zip file and an update file")
	}
	sc, err := openScene(ctx)
	if err != nil {
		return err
	}
	defer sc.Close()

	inst := ctx.Int("instance")
	if inst < 0 || inst >= sc.BVH().InstanceCount() {
		return scene.ErrUnknownInstance
	}

	start := geom.IdentityFrame()
	if start.Translation, err = parseVec3(ctx.String("translate")); err != nil {
		return err
	}
	end := start
	if v := ctx.String("end-translate"); v != "" {
		if end.Translation, err = parseVec3(v); err != nil {
			return err
		}
	}
	if v := ctx.String("end-rotate"); v != "" {
		f, err := parseFloats(v, 4)
		if err != nil {
			return err
		}
		end.Rotation = types.QuatFromAxisAngle(types.XYZ(f[0], f[1], f[2]), mgl32.DegToRad(f[3]))
	}

	file := ctx.Args().Get(1)
	update := scene.InstanceUpdate{Instance: uint32(inst), Start: start, End: end}
	if err = writer.AppendUpdate(file, sc.ID, []scene.InstanceUpdate{update}); err != nil {
		return err
	}
	logger.Noticef("appended update for instance %d to %s", inst, file)
	return nil
}
