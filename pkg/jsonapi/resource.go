package jsonapi

import "time"

// ResourceBuilder builds Resource objects.
type ResourceBuilder struct {
	r Resource
}

// NewResource starts a resource with the given type and ID.
func NewResource(resourceType, id string) *ResourceBuilder {
	return &ResourceBuilder{r: Resource{
		Type:       resourceType,
		ID:         id,
		Attributes: make(map[string]any),
	}}
}

// Attr sets an attribute. "id" and "type" are top-level members and are ignored.
func (b *ResourceBuilder) Attr(key string, value any) *ResourceBuilder {
	if key == "id" || key == "type" {
		return b
	}
	b.r.Attributes[key] = value
	return b
}

// Time sets an RFC 3339 timestamp attribute, or null for a nil time.
func (b *ResourceBuilder) Time(key string, t *time.Time) *ResourceBuilder {
	if t == nil {
		return b.Attr(key, nil)
	}
	return b.Attr(key, t.UTC().Format(time.RFC3339))
}

// Meta adds a metadata entry.
func (b *ResourceBuilder) Meta(key string, value any) *ResourceBuilder {
	if b.r.Meta == nil {
		b.r.Meta = make(Meta)
	}
	b.r.Meta[key] = value
	return b
}

// Link sets the self link.
func (b *ResourceBuilder) Link(self string) *ResourceBuilder {
	b.r.Links = &ResourceLinks{Self: self}
	return b
}

// Build returns the Resource.
func (b *ResourceBuilder) Build() Resource {
	return b.r
}
