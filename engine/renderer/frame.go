package renderer

import (
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

type binder interface {
	Bind() error
}

/**
 * @brief Submits the frame: refreshes the world matrices, writes the frame
 * constants, binds the scene buffers once and issues one draw per render
 * entity in registration order. Vertices are pulled in the shader through
 * the index arena, so a draw is IndexCount vertices with no vertex or index
 * buffer bound. A buffer failure aborts the frame before any draw.
 */
func (rw *RenderWorld) Render() (metadata.FrameStats, error) {
	stats := metadata.FrameStats{}
	if rw.state == StateUninitialized {
		return stats, fmt.Errorf("render world: %w", core.ErrNotInitialized)
	}
	rw.state = StateRendering

	if err := rw.UpdateWorldMatrices(); err != nil {
		return stats, fmt.Errorf("frame aborted: %w", err)
	}
	if rw.meshes.Stale() {
		core.LogWarn("mesh cache is stale, uploading it again")
		if err := rw.meshes.Sync(); err != nil {
			return stats, fmt.Errorf("frame aborted: %w", err)
		}
	}

	frame := metadata.FrameConstants{
		View:            rw.camera.GetView(),
		Projection:      rw.view.Projection,
		CameraPosition:  rw.camera.Position,
		CameraDirection: rw.camera.Forward(),
		LightCount:      rw.world.LightCount(),
	}
	if err := rw.frameConstants.Write(&frame); err != nil {
		return stats, fmt.Errorf("frame aborted: %w", err)
	}
	if err := rw.frameConstants.Bind(); err != nil {
		return stats, fmt.Errorf("frame aborted: %w", err)
	}

	for _, b := range []binder{rw.meshes, rw.worldMatrices} {
		if err := b.Bind(); err != nil {
			return stats, fmt.Errorf("frame aborted: %w", err)
		}
	}

	for _, re := range rw.entities {
		record, ok := rw.meshes.Record(re.Mesh)
		if !ok {
			return stats, fmt.Errorf("%w: %d", core.ErrUnknownMesh, re.Mesh)
		}

		draw := metadata.DrawConstants{
			MeshID:        uint32(re.Mesh),
			WorldMatrixID: re.WorldMatrixSlot,
		}
		if err := rw.drawConstants.Write(&draw); err != nil {
			return stats, err
		}
		if err := rw.drawConstants.Bind(); err != nil {
			return stats, err
		}
		if err := rw.backend.Draw(record.IndexCount); err != nil {
			return stats, err
		}

		stats.DrawCalls++
		stats.Vertices += uint64(record.IndexCount)
	}
	return stats, nil
}
