package jsonapi

// DocumentBuilder builds Document objects.
type DocumentBuilder struct {
	doc Document
}

// NewDocument starts an empty document.
func NewDocument() *DocumentBuilder {
	return &DocumentBuilder{}
}

// Data sets a single resource as primary data.
func (b *DocumentBuilder) Data(r Resource) *DocumentBuilder {
	b.doc.Data = r
	return b
}

// Collection sets a list of resources as primary data.
// A nil slice is rendered as an empty array.
func (b *DocumentBuilder) Collection(resources []Resource) *DocumentBuilder {
	if resources == nil {
		resources = []Resource{}
	}
	b.doc.Data = resources
	return b
}

// Errors sets the error list and clears any data.
func (b *DocumentBuilder) Errors(errs ...Error) *DocumentBuilder {
	b.doc.Errors = errs
	b.doc.Data = nil
	return b
}

// Meta adds a metadata entry.
func (b *DocumentBuilder) Meta(key string, value any) *DocumentBuilder {
	if b.doc.Meta == nil {
		b.doc.Meta = make(Meta)
	}
	b.doc.Meta[key] = value
	return b
}

// Pagination adds page metadata and navigation links.
func (b *DocumentBuilder) Pagination(p *Pagination) *DocumentBuilder {
	if p == nil {
		return b
	}
	for k, v := range p.Meta() {
		b.Meta(k, v)
	}
	b.doc.Links = p.Links()
	return b
}

// Build returns the Document.
func (b *DocumentBuilder) Build() Document {
	return b.doc
}

// NewErrorDocument creates a document holding only errors.
func NewErrorDocument(errs ...Error) Document {
	return NewDocument().Errors(errs...).Build()
}
