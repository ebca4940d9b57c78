// Package product loads product mesh data from the product API and hands it
// to a scene engine.
//
// The engine is reached through Entity and View only, so the component can
// drive a real renderer, a headless recorder at build time, or a test fake.
package product

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// DefaultID is the product shown when no id is configured.
const DefaultID = "10344b13-d981-47a0-90ac-f048ee2780a6"

// Event names emitted on the entity.
const (
	EventMaterialChanged = "material-changed"
	EventModelLoaded     = "model-loaded"
)

// Object3D is the scene node the product's meshes are attached to.
type Object3D struct {
	Name string
}

// MaterialChanged is the detail of a material-changed event.
type MaterialChanged struct {
	Mesh     string `json:"mesh"`
	Material string `json:"material"`
}

// ModelLoaded is the detail of a model-loaded event.
type ModelLoaded struct {
	Format string    `json:"format"`
	Model  *Object3D `json:"-"`
}

// Entity is the engine object the component is attached to.
type Entity interface {
	SetObject3D(kind string, obj *Object3D)
	RemoveObject3D(kind string)
	SetData3d(d *Data3d)
	Emit(event string, detail any)
}

// View renders mesh data below a parent object.
type View interface {
	Set(d *Data3d) error
	Destroy()
}

// ViewFactory creates the view for a new mesh object.
type ViewFactory func(parent *Object3D) View

// Fetcher loads products; *Client implements it.
type Fetcher interface {
	Get(ctx context.Context, id string) (*Product, error)
}

// Property describes a configurable component property.
type Property struct {
	Type    string
	Default string
	OneOf   []string
}

// Component is the scene component of one entity. It is not safe for
// concurrent use.
type Component struct {
	entity   Entity
	products Fetcher
	views    ViewFactory

	// Data holds the current property values, "id" and one
	// "material_<mesh>" entry per mesh.
	Data map[string]string
	// Schema lists the known properties. Per-mesh material properties are
	// added after the first load.
	Schema map[string]Property

	ProductInfo        *Product
	Data3d             *Data3d
	AvailableMaterials map[string][]string

	mesh   *Object3D
	view   View
	prevID string
}

// NewComponent attaches a component to entity with the default product id.
func NewComponent(entity Entity, products Fetcher, views ViewFactory) *Component {
	return &Component{
		entity:   entity,
		products: products,
		views:    views,
		Data:     map[string]string{"id": DefaultID},
		Schema:   map[string]Property{"id": {Type: "string", Default: DefaultID}},
	}
}

var whitespaceRegex = regexp.MustCompile(`\s`)

// MaterialProperty returns the property name that selects a mesh's material.
func MaterialProperty(mesh string) string {
	return "material_" + whitespaceRegex.ReplaceAllString(mesh, "_")
}

// Update loads the configured product and shows it. An empty id does
// nothing.
func (c *Component) Update(ctx context.Context) error {
	id := c.Data["id"]
	if id == "" {
		return nil
	}

	c.Remove()
	c.mesh = &Object3D{Name: "mesh"}
	if c.views != nil {
		c.view = c.views(c.mesh)
	}

	p, err := c.products.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Data3d == nil {
		return fmt.Errorf("product %s has no mesh data", id)
	}

	c.ProductInfo = p
	c.Data3d = p.Data3d
	c.AvailableMaterials = make(map[string][]string, len(p.Data3d.Meshes))

	names := make([]string, 0, len(p.Data3d.Meshes))
	for name := range p.Data3d.Meshes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mesh := p.Data3d.Meshes[name]
		if mesh == nil {
			mesh = Mesh{}
			p.Data3d.Meshes[name] = mesh
		}
		alternatives := p.Data3d.AlternativeMaterialsByMeshKey[name]
		c.AvailableMaterials[name] = alternatives

		prop := MaterialProperty(name)
		if material, ok := c.Data[prop]; ok {
			mesh.SetMaterial(material)
			c.entity.Emit(EventMaterialChanged, MaterialChanged{Mesh: name, Material: material})
			continue
		}
		c.Schema[prop] = Property{Type: "string", Default: mesh.Material(), OneOf: alternatives}
		c.Data[prop] = mesh.Material()
	}

	if c.view != nil {
		if err := c.view.Set(p.Data3d); err != nil {
			return fmt.Errorf("failed to show product %s: %w", id, err)
		}
	}
	c.entity.SetData3d(p.Data3d)
	c.entity.SetObject3D("mesh", c.mesh)
	if c.prevID != id {
		c.entity.Emit(EventModelLoaded, ModelLoaded{Format: "data3d", Model: c.mesh})
	}
	c.prevID = id
	return nil
}

// Remove destroys the view and detaches the mesh.
func (c *Component) Remove() {
	if c.view != nil {
		c.view.Destroy()
		c.view = nil
	}
	if c.mesh != nil {
		c.entity.RemoveObject3D("mesh")
		c.mesh = nil
	}
}
