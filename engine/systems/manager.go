package systems

import (
	"github.com/spaghettifunk/framegraph/engine/renderer"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

type SystemManager struct {
	renderGraphSystem *RenderGraphSystem
}

func NewSystemManager(config RenderGraphSystemConfig, backend renderer.RendererBackend, desc *rendergraph.Description, loader GraphLoader) (*SystemManager, error) {
	rgs, err := NewRenderGraphSystem(config, backend, desc)
	if err != nil {
		return nil, err
	}
	rgs.SetLoader(loader)
	return &SystemManager{
		renderGraphSystem: rgs,
	}, nil
}

func (sm *SystemManager) Initialize() error {
	return sm.renderGraphSystem.Initialize()
}

func (sm *SystemManager) RenderGraph() *RenderGraphSystem {
	return sm.renderGraphSystem
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.renderGraphSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
