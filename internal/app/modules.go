package app

import (
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/modules/clean"
	"github.com/vk/pagegrid/modules/compileless"
	"github.com/vk/pagegrid/modules/copystatic"
	"github.com/vk/pagegrid/modules/notify"
	"github.com/vk/pagegrid/modules/partnerpages"
	"github.com/vk/pagegrid/modules/productdata"
	"github.com/vk/pagegrid/modules/publish"
	"github.com/vk/pagegrid/modules/rendermarkdown"
	"github.com/vk/pagegrid/modules/rendertemplates"
)

// coreModules is the list of runners compiled into the pagegrid binary.
var coreModules = []registry.Module{
	&clean.Module{},
	&copystatic.Module{},
	&rendertemplates.Module{},
	&rendermarkdown.Module{},
	&partnerpages.Module{},
	&compileless.Module{},
	&productdata.Module{},
	&publish.Module{},
	&notify.Module{},
}
