package artifact

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator renders a document and persists it, returning a document id
// that doubles as the storage filename.
type Generator struct {
	renderer *PDFRenderer
	storage  *LocalStorage
}

// NewGenerator wires the renderer to local storage.
func NewGenerator(renderer *PDFRenderer, storage *LocalStorage) *Generator {
	if renderer == nil {
		renderer = NewPDFRenderer()
	}
	return &Generator{renderer: renderer, storage: storage}
}

// Generate renders the template and stores the result.
func (g *Generator) Generate(kind TemplateKind, doc Document) (string, error) {
	data, err := g.renderer.Render(doc)
	if err != nil {
		return "", err
	}
	documentID := fmt.Sprintf("%s-%s.pdf", kind, uuid.NewString())
	if _, err := g.storage.Save(documentID, data); err != nil {
		return "", err
	}
	return documentID, nil
}
