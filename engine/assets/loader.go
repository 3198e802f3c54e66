package assets

import (
	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/rendergraph"
)

type Loader interface {
	Load(path string, vars loaders.Variables) (*rendergraph.Description, error)
}
