// Package productdata resolves 3D products at build time. Each product is
// loaded through the scene component with a headless entity, and the
// resulting mesh data and material options are written as JSON for the
// site's viewer pages.
package productdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/product"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Endpoint string   `hcl:"endpoint,optional"`
	Products []string `hcl:"products,optional"`
	// OutputDir is relative to the dest directory.
	OutputDir string `hcl:"output_dir,optional"`
	// Materials preselects materials by mesh name for every product.
	Materials map[string]string `hcl:"materials,optional"`
	Timeout   string            `hcl:"timeout,optional"`
}

// Record is the JSON document written per product.
type Record struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Manufacturer string              `json:"manufacturer,omitempty"`
	Materials    map[string][]string `json:"materials"`
	Selected     map[string]string   `json:"selected"`
	Data3d       *product.Data3d     `json:"data3d"`
}

// headless is a scene entity without a renderer.
type headless struct {
	ctx    context.Context
	data3d *product.Data3d
	mesh   *product.Object3D
}

func (h *headless) SetObject3D(kind string, obj *product.Object3D) { h.mesh = obj }
func (h *headless) RemoveObject3D(kind string)                     { h.mesh = nil }
func (h *headless) SetData3d(d *product.Data3d)                    { h.data3d = d }
func (h *headless) Emit(event string, detail any) {
	ctxlog.FromContext(h.ctx).Debug("Scene event.", "event", event, "detail", detail)
}

// Run loads every product and writes <output_dir>/<id>.json.
func Run(ctx context.Context, s *site.Site, in *Input) (*site.FilesOutput, error) {
	logger := ctxlog.FromContext(ctx)

	timeout := 30 * time.Second
	if in.Timeout != "" {
		d, err := time.ParseDuration(in.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", in.Timeout, err)
		}
		timeout = d
	}
	client := product.NewClient(in.Endpoint, &http.Client{Timeout: timeout})
	logger.Debug("Resolving products.", "count", len(in.Products), "endpoint", in.Endpoint)

	return s.ForEachFile(ctx, in.Products, func(ctx context.Context, id string) (string, error) {
		if id == "" || strings.ContainsAny(id, `/\`) {
			return "", fmt.Errorf("invalid product id %q", id)
		}
		entity := &headless{ctx: ctx}
		c := product.NewComponent(entity, client, nil)
		c.Data["id"] = id
		for mesh, material := range in.Materials {
			c.Data[product.MaterialProperty(mesh)] = material
		}
		if err := c.Update(ctx); err != nil {
			return "", err
		}
		defer c.Remove()

		record := &Record{
			ID:           id,
			Name:         c.ProductInfo.Name,
			Manufacturer: c.ProductInfo.Manufacturer,
			Materials:    c.AvailableMaterials,
			Selected:     selected(entity.data3d),
			Data3d:       entity.data3d,
		}
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode product %s: %w", id, err)
		}
		logger.Info("Resolved product", "id", id, "name", record.Name, "meshes", len(record.Selected))
		return s.WriteFile(path.Join(in.OutputDir, id+".json"), data)
	})
}

func selected(d *product.Data3d) map[string]string {
	out := make(map[string]string, len(d.Meshes))
	for name, mesh := range d.Meshes {
		out[name] = mesh.Material()
	}
	return out
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("product_data", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{
				Endpoint:  product.DefaultEndpoint,
				Products:  []string{product.DefaultID},
				OutputDir: "products",
			}
		},
		Fn:          Run,
		Description: "resolve 3D product data",
	})
}
